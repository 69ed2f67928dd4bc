package domain

import "time"

// QueueEntry is a client waiting for its turn.
// Seq is the insertion sequence number and is the authoritative ordering key;
// EnqueuedAt is informational since clock readings may collide.
type QueueEntry struct {
	AccessKey  string    `json:"access_key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Seq        uint64    `json:"seq"`
}

// Session is the active admission of one client.
type Session struct {
	AccessKey      string    `json:"access_key"`
	ComputationKey string    `json:"computation_key,omitempty"`
	Ports          PortBlock `json:"ports"`
	CreatedAt      time.Time `json:"created_at"`

	// HeadDeadline is when the session is evicted if no session-consuming call was made.
	HeadDeadline time.Time `json:"head_deadline"`

	// Deadline bounds the whole session once dispatched. Zero means unbounded.
	Deadline time.Time `json:"deadline,omitempty"`

	SharedData         bool `json:"shared_data"`
	QueriedComputation bool `json:"queried_computation"`
}

// Consumed reports whether any session-consuming call has been made.
func (s *Session) Consumed() bool {
	return s.SharedData || s.QueriedComputation
}

// Redacted returns a copy without the credential, suitable for introspection.
func (s Session) Redacted() Session {
	s.ComputationKey = ""
	return s
}

// Position is the answer to a position poll.
// Position is nil when the identifier is neither queued nor active.
// ComputationKey is only set once Position reaches zero.
type Position struct {
	Position       *int   `json:"position"`
	ComputationKey string `json:"computation_key,omitempty"`
}

// IsHead reports whether the identifier holds the active session.
func (p Position) IsHead() bool {
	return p.Position != nil && *p.Position == 0
}

// Grant is what a session-consuming call returns: the ports the client must use.
type Grant struct {
	Ports       PortBlock `json:"ports"`
	SecretIndex int       `json:"secret_index,omitempty"`
}

// ClientPortBase is the value returned to clients on the wire.
func (g Grant) ClientPortBase() int {
	return g.Ports.ClientPortBase()
}

// Snapshot is a consistent view of the admission state.
type Snapshot struct {
	Waiting        []QueueEntry `json:"waiting"`
	Active         *Session     `json:"active,omitempty"`
	FreePortBlocks int          `json:"free_port_blocks"`
	Capacity       int          `json:"capacity"`
	TakenAt        time.Time    `json:"taken_at"`
}

// Len returns the number of identifiers in line, the active head included.
func (s Snapshot) Len() int {
	n := len(s.Waiting)
	if s.Active != nil {
		n++
	}
	return n
}

// Contribution records a secret index handed to the parties.
type Contribution struct {
	AccessKey   string    `json:"access_key"`
	Address     string    `json:"address"`
	SecretIndex int       `json:"secret_index"`
	Commitment  string    `json:"commitment"`
	RecordedAt  time.Time `json:"recorded_at"`
	// Failed marks an index whose dispatch did not complete. The index stays used but the
	// access key and address are not counted as contributors.
	Failed bool `json:"failed,omitempty"`
}

// SessionState is where an access key stands in the admission lifecycle.
type SessionState string

const (
	StateAbsent SessionState = "absent"
	StateQueued SessionState = "queued"
	StateActive SessionState = "active"
)

// Status is a read-only view of one access key. Looking it up never promotes anyone.
type Status struct {
	AccessKey string       `json:"access_key"`
	State     SessionState `json:"state"`
	Position  *int         `json:"position,omitempty"`
	// Session is redacted: it never carries the credential.
	Session *Session `json:"session,omitempty"`
}
