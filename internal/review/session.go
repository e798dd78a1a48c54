package review

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lexdrill/lexdrill/internal/srs"
	"github.com/lexdrill/lexdrill/internal/storage"
)

var (
	// ErrNoActiveCard is returned when a rating arrives for a card that is
	// not the one currently presented (double submission, stale client).
	ErrNoActiveCard = errors.New("review: no matching card awaiting a rating")

	// ErrUnsupportedRating is returned when the configured policy does not
	// understand the submitted rating.
	ErrUnsupportedRating = errors.New("review: rating not supported by the active policy")
)

// State is the session's position in its lifecycle.
type State int

const (
	Idle       State = iota // No card requested yet.
	Presenting              // A card is out, awaiting its rating.
	Empty                   // The queue reported no due cards.
)

// Session drives one review interaction: serve the most-due unseen card,
// take the rating, apply the scheduling policy, persist, advance. One Session
// per sitting; a restarted page gets a fresh Session (never a singleton).
type Session struct {
	queue *Queue
	sched srs.Scheduler
	store Store
	clock func() time.Time

	// One card at a time: the loop is single-writer, the mutex only guards
	// against concurrent HTTP requests hitting the same session.
	mu      sync.Mutex
	current *storage.Word
	state   State
}

// NewSession creates a session with an empty seen set.
func NewSession(store Store, sched srs.Scheduler, batchSize int, clock func() time.Time) *Session {
	if clock == nil {
		clock = time.Now
	}
	return &Session{
		queue: NewQueue(store, batchSize),
		sched: sched,
		store: store,
		clock: clock,
		state: Idle,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Policy returns the name of the scheduling policy driving this session.
func (s *Session) Policy() string {
	return s.sched.Name()
}

// Next returns the card to present, or (nil, nil) when the session is
// complete. While a card is awaiting its rating, Next returns that same card
// again rather than advancing. Calling Next after Empty performs an explicit
// re-check.
func (s *Session) Next() (*storage.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}

	w, err := s.queue.Next(s.clock())
	if err != nil {
		return nil, fmt.Errorf("selecting next card: %w", err)
	}
	if w == nil {
		s.state = Empty
		return nil, nil
	}

	s.current = w
	s.state = Presenting
	return w, nil
}

// Rate applies the user's rating to the currently presented card. The
// schedule is recomputed and persisted when the policy calls for it; on a
// persistence failure nothing advances and the same rating may be retried.
// On success the card is marked seen for the rest of the session.
func (s *Session) Rate(wordID string, rating srs.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != wordID {
		return ErrNoActiveCard
	}
	if !s.sched.Accepts(rating) {
		return fmt.Errorf("%w: %s does not take %q", ErrUnsupportedRating, s.sched.Name(), rating)
	}

	next, persist := s.sched.Review(s.current.Schedule, rating, s.clock())
	if persist {
		if err := s.store.UpdateSchedule(s.current.ID, next); err != nil {
			return fmt.Errorf("persisting schedule for %s: %w", s.current.ID, err)
		}
	}

	s.queue.MarkSeen(s.current.ID)
	s.current = nil
	s.state = Idle
	return nil
}

// Remaining estimates how many due cards are left in this session.
func (s *Session) Remaining() (int, error) {
	return s.queue.Remaining(s.clock())
}
