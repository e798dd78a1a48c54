// Package review implements the review-session core: the queue that selects
// due cards without repeats, and the session orchestrator that ties the
// queue, the scheduler, and the store together.
package review

import (
	"sync"
	"time"

	"github.com/lexdrill/lexdrill/internal/srs"
	"github.com/lexdrill/lexdrill/internal/storage"
)

// DefaultBatchSize is how many due candidates one selection fetches. Fetching
// a small batch instead of a single row tolerates the top candidate having
// just been marked seen.
const DefaultBatchSize = 8

// Store is the slice of the persistent store the review core needs.
// *storage.Store satisfies it.
type Store interface {
	FindDue(before time.Time, excluding []string, limit int) ([]storage.Word, error)
	CountDue(before time.Time, excluding []string) (int, error)
	UpdateSchedule(id string, state srs.ScheduleState) error
}

// Queue selects the next due card for one review session. It owns the
// no-repeats-within-a-session invariant via its seen set; the set only grows
// when a card has been confirmedly served and rated, never on a failed fetch.
type Queue struct {
	store     Store
	batchSize int

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewQueue creates a queue for a fresh session.
func NewQueue(store Store, batchSize int) *Queue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Queue{
		store:     store,
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
	}
}

// Next returns the most-due unseen card, or (nil, nil) when no due card
// remains. Store errors are returned as-is; the caller may retry and no
// queue state changes on failure.
func (q *Queue) Next(now time.Time) (*storage.Word, error) {
	batch, err := q.store.FindDue(now, q.seenIDs(), q.batchSize)
	if err != nil {
		return nil, err
	}

	// Re-filter against seen: a card may have been marked between the
	// snapshot above and the query returning.
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range batch {
		if _, ok := q.seen[batch[i].ID]; ok {
			continue
		}
		return &batch[i], nil
	}
	return nil, nil
}

// MarkSeen records that a card was presented and rated; it will not be
// served again in this session.
func (q *Queue) MarkSeen(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen[id] = struct{}{}
}

// Remaining estimates how many due cards this session has left. It may count
// cards whose schedule will have changed before they are actually served.
func (q *Queue) Remaining(now time.Time) (int, error) {
	return q.store.CountDue(now, q.seenIDs())
}

// Reset clears the seen set, starting the queue over as a new session.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen = make(map[string]struct{})
}

func (q *Queue) seenIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(q.seen))
	for id := range q.seen {
		ids = append(ids, id)
	}
	return ids
}
