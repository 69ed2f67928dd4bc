package admission

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// DefaultTombstones bounds how many retired credentials are remembered for idempotent finishes.
const DefaultTombstones = 4096

// TokenFunc mints an unguessable credential.
type TokenFunc func() (string, error)

// NewToken returns 16 random bytes, URL-safe base64 encoded.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RetireOutcome tells the caller what Retire did.
type RetireOutcome int

const (
	// Retired means a live session was removed and its ports released.
	Retired RetireOutcome = iota
	// AlreadyRetired means the credential belonged to a session retired earlier.
	AlreadyRetired
)

// Registry maps access keys to live sessions and owns their port blocks through the pool.
type Registry struct {
	pool     *PortPool
	newToken TokenFunc
	sessions map[string]*domain.Session

	// Recently retired credentials, so a repeated finish stays idempotent.
	tombstones     map[string]string
	tombstoneOrder []string
	maxTombstones  int
}

// NewRegistry creates a registry backed by pool.
func NewRegistry(pool *PortPool, newToken TokenFunc) *Registry {
	if newToken == nil {
		newToken = NewToken
	}
	return &Registry{
		pool:          pool,
		newToken:      newToken,
		sessions:      make(map[string]*domain.Session),
		tombstones:    make(map[string]string),
		maxTombstones: DefaultTombstones,
	}
}

// Promote creates a session for key: it allocates a port block and mints a credential.
// It fails with domain.ErrExhausted when no block is free; nothing is changed in that case.
func (r *Registry) Promote(key string, now time.Time, headTimeout time.Duration) (*domain.Session, error) {
	if _, exists := r.sessions[key]; exists {
		return nil, fmt.Errorf("%w: session already exists for key", domain.ErrAlreadyQueued)
	}
	block, err := r.pool.Allocate()
	if err != nil {
		return nil, err
	}
	token, err := r.newToken()
	if err != nil {
		// Allocate just handed this block out, so Release cannot fail.
		_ = r.pool.Release(block)
		return nil, err
	}
	s := &domain.Session{
		AccessKey:      key,
		ComputationKey: token,
		Ports:          block,
		CreatedAt:      now,
		HeadDeadline:   now.Add(headTimeout),
	}
	r.sessions[key] = s
	return s, nil
}

// Get returns the live session for key.
func (r *Registry) Get(key string) (*domain.Session, bool) {
	s, ok := r.sessions[key]
	return s, ok
}

// Validate reports whether key has a live session whose credential equals credential.
func (r *Registry) Validate(key, credential string) bool {
	s, ok := r.sessions[key]
	if !ok {
		return false
	}
	return tokensEqual(s.ComputationKey, credential)
}

// Retire removes the session and releases its ports. A credential belonging to a session
// that was already retired yields AlreadyRetired without error.
func (r *Registry) Retire(key, credential string) (RetireOutcome, *domain.Session, error) {
	s, ok := r.sessions[key]
	if !ok {
		if old, seen := r.tombstones[key]; seen {
			if tokensEqual(old, credential) {
				return AlreadyRetired, nil, nil
			}
			return 0, nil, domain.ErrInvalidCredential
		}
		return 0, nil, domain.ErrNotActive
	}
	if !tokensEqual(s.ComputationKey, credential) {
		return 0, nil, domain.ErrInvalidCredential
	}
	r.Detach(key)
	if err := r.pool.Release(s.Ports); err != nil {
		return Retired, s, err
	}
	return Retired, s, nil
}

// Detach removes the session without releasing its ports. The caller owns the block
// afterwards and must release it through the pool.
func (r *Registry) Detach(key string) (*domain.Session, bool) {
	s, ok := r.sessions[key]
	if !ok {
		return nil, false
	}
	delete(r.sessions, key)
	r.remember(key, s.ComputationKey)
	return s, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

func (r *Registry) remember(key, credential string) {
	if _, seen := r.tombstones[key]; !seen {
		r.tombstoneOrder = append(r.tombstoneOrder, key)
	}
	r.tombstones[key] = credential
	for len(r.tombstoneOrder) > r.maxTombstones {
		oldest := r.tombstoneOrder[0]
		r.tombstoneOrder = r.tombstoneOrder[1:]
		delete(r.tombstones, oldest)
	}
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
