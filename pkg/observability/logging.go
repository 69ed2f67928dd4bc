package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that log every transition.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdmission: func(ctx context.Context, e *domain.AdmissionEvent) {
			logger.DebugContext(ctx, "Admission", "access_key", e.AccessKey, "result", e.Result, "queue_size", e.QueueSize)
		},
		OnPromotion: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "Session promoted", "access_key", e.AccessKey, "ports", e.Ports.String())
		},
		OnEviction: func(ctx context.Context, e *domain.SessionEvent) {
			logger.WarnContext(ctx, "Session evicted", "access_key", e.AccessKey, "reason", e.Reason, "ports", e.Ports.String())
		},
		OnRetirement: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "Session finished", "access_key", e.AccessKey, "free_port_blocks", e.FreePortBlocks)
		},
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "Dispatch failed", "access_key", e.AccessKey, "phase", e.Phase, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "Dispatch completed", "access_key", e.AccessKey, "phase", e.Phase, "duration", e.Duration, "commitment", e.Commitment)
		},
	}
}
