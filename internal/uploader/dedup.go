package uploader

import (
	"context"

	"go.uber.org/zap"
)

// Deduplicator tracks which record identities have already been persisted.
// It combines a run-scoped in-memory set with an existence probe against the
// storage backend, so duplicates are skipped both within a run and across
// runs against the same backend.
type Deduplicator struct {
	store  Store
	seen   map[string]struct{}
	logger *zap.Logger
}

// NewDeduplicator builds a Deduplicator backed by the given store. A nil
// store yields run-scoped (in-memory only) deduplication.
func NewDeduplicator(store Store, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		store:  store,
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Seen reports whether a record with this identity has already been
// persisted. A failing backend probe degrades to run-scoped dedup rather
// than surfacing an error.
func (d *Deduplicator) Seen(ctx context.Context, identity string) bool {
	if _, ok := d.seen[identity]; ok {
		return true
	}
	if d.store == nil {
		return false
	}
	exists, err := d.store.Exists(ctx, identity)
	if err != nil {
		d.logger.Debug("existence probe failed; falling back to run-scoped dedup",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return false
	}
	if exists {
		d.seen[identity] = struct{}{}
	}
	return exists
}

// Mark records that an identity has now been persisted.
func (d *Deduplicator) Mark(identity string) {
	d.seen[identity] = struct{}{}
}
