package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/mpcgate/internal/logging"
	"github.com/aretw0/mpcgate/pkg/domain"
)

// EnvPrefix is prepended to every argument passed to a tool.
const EnvPrefix = "MPC_ARG_"

// ErrToolNotRegistered is returned when Run is asked for a name outside the allow-list.
var ErrToolNotRegistered = errors.New("process tool not registered")

// Runner implements ports.ProcessRunner by executing local processes.
// It follows a Strict Registry pattern for security (Allow-Listing).
type Runner struct {
	registry map[string]RegisteredProcess
	baseDir  string
	logger   *slog.Logger
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string // Fixed args, never taken from callers
	Env     map[string]string
	Dir     string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]Tool) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			r.registry[name] = RegisteredProcess{
				Command: tool.Command,
				Args:    tool.Args,
				Env:     tool.Env,
				Dir:     tool.Dir,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger used to trace invocations.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredProcess),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Has reports whether name is on the allow-list.
func (r *Runner) Has(name string) bool {
	_, ok := r.registry[name]
	return ok
}

// Names lists the registered tools.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named tool. Caller arguments never become command flags: they are
// passed as MPC_ARG_<NAME> environment variables to prevent flag injection.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	proc, ok := r.registry[name]
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotRegistered, name)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	if proc.Dir != "" {
		cmd.Dir = proc.Dir
	}

	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, fmt.Sprintf("%s%s=%s", EnvPrefix, strings.ToUpper(k), encodeArg(v)))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running tool", "tool", name, "command", proc.Command)
	err := cmd.Run()

	result := domain.ToolResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		r.logger.Warn("Tool failed", "tool", name, "exit_code", result.ExitCode, "err", err)
		return result, &domain.EngineError{
			Tool:     name,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}

	result.Output = decodeOutput(result.Stdout)
	return result, nil
}

func encodeArg(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		if inJSON, err := json.Marshal(v); err == nil {
			return string(inJSON)
		}
		return fmt.Sprintf("%v", v)
	}
}

// decodeOutput returns the JSON value printed on stdout, else the trimmed string.
// Tools may log before their result, so the last line is tried when the whole output is not JSON.
func decodeOutput(stdout string) any {
	trimmed := strings.TrimSpace(stdout)
	if v, ok := parseJSON(trimmed); ok {
		return v
	}
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		if v, ok := parseJSON(strings.TrimSpace(trimmed[i+1:])); ok {
			return v
		}
	}
	return trimmed
}

func parseJSON(s string) (any, bool) {
	if !(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) &&
		!(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
