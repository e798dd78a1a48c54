package srs

import "time"

// Scheduling bounds shared by all policies.
const (
	MinIntervalDays = 1.0
	MinEaseFactor   = 1.3
	MaxEaseFactor   = 2.8

	DefaultEaseFactor = 2.5
)

// ScheduleState is the per-word scheduling payload. It is produced only by a
// Scheduler transition; callers persist it but never edit its fields.
type ScheduleState struct {
	IntervalDays float64   `json:"interval_days"`
	EaseFactor   float64   `json:"ease_factor"`
	NextReviewAt time.Time `json:"next_review_at"`
	Learned      bool      `json:"learned"`
}

// NewScheduleState returns the state a word is created with: due immediately,
// one-day base interval, default ease.
func NewScheduleState(now time.Time) ScheduleState {
	return ScheduleState{
		IntervalDays: MinIntervalDays,
		EaseFactor:   DefaultEaseFactor,
		NextReviewAt: now.UTC(),
	}
}

// Due reports whether the word should be offered for review at the given time.
// Learned words are never due.
func (s ScheduleState) Due(now time.Time) bool {
	return !s.Learned && !s.NextReviewAt.After(now)
}

// normalized clamps fields back into their valid domain. Stored state may have
// been corrupted upstream; transitions recover rather than fail.
func (s ScheduleState) normalized() ScheduleState {
	if s.IntervalDays <= 0 {
		s.IntervalDays = MinIntervalDays
	}
	s.EaseFactor = clampEase(s.EaseFactor)
	return s
}

func clampEase(ease float64) float64 {
	if ease < MinEaseFactor {
		return MinEaseFactor
	}
	if ease > MaxEaseFactor {
		return MaxEaseFactor
	}
	return ease
}
