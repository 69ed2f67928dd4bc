package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventAdmission  EventType = "admission"
	EventPromotion  EventType = "promotion"
	EventEviction   EventType = "eviction"
	EventRetirement EventType = "retirement"
	EventDispatch   EventType = "dispatch"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	AccessKey string    `json:"access_key"`
}

// AdmissionEvent is fired for every enqueue attempt.
type AdmissionEvent struct {
	EventBase
	Result    AddResult `json:"result"`
	QueueSize int       `json:"queue_size"`
}

// SessionEvent is fired when a session is created or destroyed.
type SessionEvent struct {
	EventBase
	Ports          PortBlock      `json:"ports"`
	Reason         EvictionReason `json:"reason,omitempty"`
	FreePortBlocks int            `json:"free_port_blocks"`
	QueueSize      int            `json:"queue_size"`
}

// DispatchEvent is fired when a party fan-out completes.
type DispatchEvent struct {
	EventBase
	Phase      Phase         `json:"phase"`
	Ports      PortBlock     `json:"ports"`
	Commitment string        `json:"commitment,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// LifecycleHooks defines callbacks for coordinator observability.
// Hooks are invoked outside the coordinator lock.
type LifecycleHooks struct {
	OnAdmission  func(context.Context, *AdmissionEvent)
	OnPromotion  func(context.Context, *SessionEvent)
	OnEviction   func(context.Context, *SessionEvent)
	OnRetirement func(context.Context, *SessionEvent)
	OnDispatch   func(context.Context, *DispatchEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnAdmission:  chain(h.OnAdmission, other.OnAdmission),
		OnPromotion:  chain(h.OnPromotion, other.OnPromotion),
		OnEviction:   chain(h.OnEviction, other.OnEviction),
		OnRetirement: chain(h.OnRetirement, other.OnRetirement),
		OnDispatch:   chain(h.OnDispatch, other.OnDispatch),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
