// Package history records completed generations.
//
// Every successful call to the generate endpoint produces one [Entry]. The
// entry holds a hash of the text rather than the text itself, together with
// enough metadata to replay the render (font and seed).
//
// Two stores are provided: [MemoryStore] keeps a bounded ring of recent
// entries, and [MongoStore] persists them in MongoDB.
package history

import (
	"context"
	"time"
)

// DefaultLimit is used by List when the caller passes a limit <= 0.
const DefaultLimit = 20

// MaxLimit caps the number of entries returned by List.
const MaxLimit = 500

// Entry describes one generation.
type Entry struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	TextLength int           `json:"text_length"`
	TextHash   string        `json:"text_hash"`
	Font       string        `json:"font"`
	PageCount  int           `json:"page_count"`
	Seed       uint64        `json:"seed"`
	Duration   time.Duration `json:"duration_ns"`
	Cached     bool          `json:"cached"`
	PDF        bool          `json:"pdf"`
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	// Record stores e. Recording an existing ID replaces it.
	Record(ctx context.Context, e Entry) error
	// Get returns the entry with id, or a NOT_FOUND error.
	Get(ctx context.Context, id string) (Entry, error)
	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Close releases the store.
	Close(ctx context.Context) error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
