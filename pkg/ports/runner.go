package ports

import (
	"context"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// ProcessRunner invokes external tools by name.
// Only tools registered with the runner may be executed.
type ProcessRunner interface {
	// Run executes the named tool. A non-zero exit is reported as *domain.EngineError.
	Run(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error)
}
