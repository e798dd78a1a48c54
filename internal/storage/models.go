package storage

import (
	"errors"
	"time"

	"github.com/lexdrill/lexdrill/internal/srs"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Word is a saved vocabulary entry together with its scheduling state.
// Lexical holds the provider's response as JSON text; the scheduler never
// looks inside it.
type Word struct {
	ID        string            `json:"id"`
	Headword  string            `json:"headword"`
	Lexical   string            `json:"lexical"`
	Schedule  srs.ScheduleState `json:"schedule"`
	CreatedAt time.Time         `json:"created_at"`
}

// Lookup is one search-history entry.
type Lookup struct {
	ID        string    `json:"id"`
	Term      string    `json:"term"`
	Found     bool      `json:"found"`
	CreatedAt time.Time `json:"created_at"`
}
