package uploader

import (
	"context"
	"time"
)

// Source produces a lazy, finite sequence of Records for one query term.
// Next returns ErrSourceExhausted once the sequence ends; a source is not
// reusable after exhaustion. The pipeline enforces the persistence limit
// itself, the source does not know about it.
type Source interface {
	Next(ctx context.Context) (Record, error)
}

// Store is the shared capability set of every storage backend variant.
type Store interface {
	// Exists reports whether a record with this identity is already persisted.
	Exists(ctx context.Context, identity string) (bool, error)
	// Put durably writes one record. Failures are classified against the
	// sentinel errors in this package.
	Put(ctx context.Context, record Record) error
	// Close releases backend resources. Safe to call after a failed run.
	Close()
}

// Filter selects persisted decisions in read queries. Zero-value fields do
// not constrain the result; Daire and Keyword match as case-insensitive
// substrings (Keyword against the summary), EsasNo and KararNo exactly, and
// Year against the verdict year.
type Filter struct {
	Daire   string
	EsasNo  string
	KararNo string
	Keyword string
	Year    string
	Limit   int
}

// Reader is the query side of a storage backend. Search returns index
// metadata only; Get loads one record including its full text, which remote
// backends retrieve lazily from blob storage.
type Reader interface {
	Get(ctx context.Context, identity string) (Record, error)
	Search(ctx context.Context, filter Filter) ([]Record, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetryPolicy decides whether and when a failed write is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests used for identity derivation.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
