package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyQueued is returned when an identifier is already queued or holds an active session.
var ErrAlreadyQueued = errors.New("already queued")

// ErrQueueFull is returned when the waiting line reached its capacity.
var ErrQueueFull = errors.New("queue is full")

// ErrNotActive is returned when a session-consuming call has no live session behind it.
var ErrNotActive = errors.New("no active session")

// ErrInvalidCredential is returned when a computation key does not match the live session.
var ErrInvalidCredential = errors.New("invalid computation key")

// ErrExhausted is returned by the port allocator when no block is free.
// Callers outside the admission core see it as ErrQueueFull.
var ErrExhausted = errors.New("port pool exhausted")

// ErrUnknownBlock is returned when releasing a block that was never allocated.
var ErrUnknownBlock = errors.New("port block not allocated")

// ErrPhaseConsumed is returned when a credential is presented twice for the same phase.
var ErrPhaseConsumed = errors.New("computation key already used for this phase")

// ErrAlreadyContributed is returned when the contribution policy forbids another share.
var ErrAlreadyContributed = errors.New("address already contributed")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// EngineError reports a failed invocation of an external tool (MPC engine, notary verifier, prover).
// It carries the captured diagnostics verbatim. It is never retried by the core.
type EngineError struct {
	Tool     string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "external engine %q failed", e.Tool)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ". Stderr: %s", stderr)
	}
	return b.String()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineFailure reports whether err wraps an *EngineError.
func IsEngineFailure(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr)
}
