package uploader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeduplicatorSeen(t *testing.T) {
	t.Parallel()

	t.Run("unknown identity", func(t *testing.T) {
		t.Parallel()
		d := NewDeduplicator(newFakeStore(), nil)
		require.False(t, d.Seen(context.Background(), "1"))
	})

	t.Run("marked identity", func(t *testing.T) {
		t.Parallel()
		d := NewDeduplicator(newFakeStore(), nil)
		d.Mark("1")
		require.True(t, d.Seen(context.Background(), "1"))
	})

	t.Run("identity already in backend", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.existing["1"] = true
		d := NewDeduplicator(store, nil)
		require.True(t, d.Seen(context.Background(), "1"))
	})

	t.Run("backend hit is cached in memory", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.existing["1"] = true
		d := NewDeduplicator(store, nil)
		require.True(t, d.Seen(context.Background(), "1"))

		// Subsequent checks skip the probe entirely.
		store.probeErr = errors.New("backend gone")
		require.True(t, d.Seen(context.Background(), "1"))
	})

	t.Run("probe failure degrades to run scope", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.existing["1"] = true
		store.probeErr = errors.New("probe unsupported")
		d := NewDeduplicator(store, nil)
		require.False(t, d.Seen(context.Background(), "1"))
	})

	t.Run("nil store is run scoped only", func(t *testing.T) {
		t.Parallel()
		d := NewDeduplicator(nil, nil)
		require.False(t, d.Seen(context.Background(), "1"))
		d.Mark("1")
		require.True(t, d.Seen(context.Background(), "1"))
	})
}
