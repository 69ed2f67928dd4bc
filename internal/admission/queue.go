package admission

import (
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Queue is the FIFO waiting line. Entries are ordered by insertion sequence;
// timestamps are kept for display only.
type Queue struct {
	entries []domain.QueueEntry
	members map[string]struct{}
	nextSeq uint64
}

// NewQueue creates an empty waiting line.
func NewQueue() *Queue {
	return &Queue{
		members: make(map[string]struct{}),
	}
}

// Push appends key to the tail. The caller checks for duplicates first.
func (q *Queue) Push(key string, now time.Time) domain.QueueEntry {
	q.nextSeq++
	entry := domain.QueueEntry{
		AccessKey:  key,
		EnqueuedAt: now,
		Seq:        q.nextSeq,
	}
	q.entries = append(q.entries, entry)
	q.members[key] = struct{}{}
	return entry
}

// Contains reports whether key is waiting.
func (q *Queue) Contains(key string) bool {
	_, ok := q.members[key]
	return ok
}

// Rank returns the zero-based rank of key among waiting entries.
func (q *Queue) Rank(key string) (int, bool) {
	if !q.Contains(key) {
		return 0, false
	}
	for i, e := range q.entries {
		if e.AccessKey == key {
			return i, true
		}
	}
	return 0, false
}

// Head returns the oldest waiting entry.
func (q *Queue) Head() (domain.QueueEntry, bool) {
	if len(q.entries) == 0 {
		return domain.QueueEntry{}, false
	}
	return q.entries[0], true
}

// Remove deletes key from the line, wherever it is.
func (q *Queue) Remove(key string) bool {
	rank, ok := q.Rank(key)
	if !ok {
		return false
	}
	q.entries = append(q.entries[:rank], q.entries[rank+1:]...)
	delete(q.members, key)
	return true
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the line in order.
func (q *Queue) Entries() []domain.QueueEntry {
	out := make([]domain.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
