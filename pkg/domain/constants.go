package domain

import "time"

// AddResult is the outcome of an admission attempt.
// The string values are part of the wire contract used by existing clients.
type AddResult string

const (
	AddResultAdded         AddResult = "ADDED"
	AddResultAlreadyQueued AddResult = "ALREADY_IN_QUEUE"
	AddResultQueueFull     AddResult = "QUEUE_IS_FULL"
)

// Phase names a session-consuming operation.
type Phase string

const (
	PhaseShareData        Phase = "share_data"
	PhaseQueryComputation Phase = "query_computation"
)

// EvictionReason explains why a session was retired without an explicit finish.
type EvictionReason string

const (
	EvictHeadTimeout     EvictionReason = "head_timeout"
	EvictSessionDeadline EvictionReason = "session_deadline"
)

// Defaults mirroring the reference deployment.
const (
	DefaultHeadTimeout   = 60 * time.Second
	DefaultPortsStart    = 8010
	DefaultPortsEnd      = 8100
	DefaultMaxQueueSize  = 1000
	DefaultPollDuration  = 10 * time.Second
	DefaultCoordPort     = 8005
	DefaultNumParties    = 3
	DefaultSweepInterval = time.Second
	DefaultInputBytes    = 4
)
