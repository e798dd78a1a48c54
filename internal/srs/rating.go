package srs

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRating is returned when parsing an unknown rating name.
var ErrInvalidRating = errors.New("srs: invalid rating")

// Rating is the user's self-reported recall quality for one review.
type Rating int

const (
	Again Rating = iota + 1 // Failed to recall; see the card again soon.
	Good                    // Recalled with some effort.
	Easy                    // Recalled effortlessly.
	Done                    // Handled for now; dequeue without rescheduling (skip policy only).
)

var (
	ratingNames = [...]string{Again: "again", Good: "good", Easy: "easy", Done: "done"}

	ratingByName = map[string]Rating{
		"again": Again,
		"good":  Good,
		"easy":  Easy,
		"done":  Done,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Rating(0)
	_ json.Marshaler           = Rating(0)
	_ json.Unmarshaler         = (*Rating)(nil)
	_ encoding.TextMarshaler   = Rating(0)
	_ encoding.TextUnmarshaler = (*Rating)(nil)
)

// IsValid reports whether r is one of the defined ratings.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Done
}

// String returns the lowercase name of the rating ("again", "good", "easy",
// "done"). For invalid values it returns "Rating(n)".
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating converts a rating name to its Rating value.
func ParseRating(name string) (Rating, error) {
	v, ok := ratingByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, name)
	}
	return v, nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON implements json.Marshaler. Rating serializes as a JSON string.
func (r Rating) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	return r.UnmarshalText([]byte(s))
}
