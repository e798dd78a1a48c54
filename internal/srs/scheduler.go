// Package srs implements the spaced-repetition scheduling core: the
// per-word ScheduleState and the pure transition functions that evolve it
// in response to user ratings. The package does no I/O; callers persist
// the returned state.
package srs

import (
	"fmt"
	"math"
	"time"
)

// SM-2 derived tuning constants.
const (
	againEasePenalty = 0.2
	easyEaseReward   = 0.1
	easyBonus        = 1.5
)

// Scheduler maps a current ScheduleState and a Rating to the next state.
// The boolean result reports whether the transition changed the state and it
// should be persisted; the skip policy never reschedules, so it returns false.
type Scheduler interface {
	// Review applies one rating at the given time. It is a total function:
	// out-of-range inputs are clamped, never rejected.
	Review(state ScheduleState, rating Rating, now time.Time) (ScheduleState, bool)

	// Accepts reports whether the policy understands the given rating.
	Accepts(rating Rating) bool

	// Name returns the policy's config name ("sm2" or "skip").
	Name() string
}

// NewScheduler returns the policy registered under the given config name.
func NewScheduler(policy string) (Scheduler, error) {
	switch policy {
	case "sm2", "":
		return SM2{}, nil
	case "skip":
		return Skip{}, nil
	default:
		return nil, fmt.Errorf("srs: unknown scheduling policy %q", policy)
	}
}

// SM2 is the three-outcome SM-2 derived policy: "again" resets the interval
// and decays ease, "good" grows the interval by the ease factor, "easy" grows
// it by an extra bonus and rewards ease. The next due time is always
// now + ceil(interval) whole days.
type SM2 struct{}

func (SM2) Name() string { return "sm2" }

func (SM2) Accepts(r Rating) bool {
	return r == Again || r == Good || r == Easy
}

func (SM2) Review(state ScheduleState, rating Rating, now time.Time) (ScheduleState, bool) {
	s := state.normalized()

	switch rating {
	case Again:
		s.IntervalDays = MinIntervalDays
		s.EaseFactor = clampEase(s.EaseFactor - againEasePenalty)
	case Good:
		s.IntervalDays = s.IntervalDays * s.EaseFactor
	case Easy:
		s.IntervalDays = s.IntervalDays * s.EaseFactor * easyBonus
		s.EaseFactor = clampEase(s.EaseFactor + easyEaseReward)
	default:
		// Rating outside this policy's domain: no reschedule.
		return state, false
	}

	s.NextReviewAt = addCeilDays(now, s.IntervalDays)
	return s, true
}

// Skip is the two-outcome policy: "again" defers the card to later in the
// session and "done" dequeues it, neither touching the stored schedule. It is
// deliberately degenerate spaced repetition — dequeue bookkeeping lives in
// the session, so Review never asks for a persist.
type Skip struct{}

func (Skip) Name() string { return "skip" }

func (Skip) Accepts(r Rating) bool {
	return r == Again || r == Done
}

func (Skip) Review(state ScheduleState, rating Rating, now time.Time) (ScheduleState, bool) {
	return state, false
}

// addCeilDays rounds the interval up to whole days before adding, so
// partial-day growth still advances to the next integer day boundary.
func addCeilDays(now time.Time, intervalDays float64) time.Time {
	days := int(math.Ceil(intervalDays))
	if days < 1 {
		days = 1
	}
	return now.UTC().Add(time.Duration(days) * 24 * time.Hour)
}
