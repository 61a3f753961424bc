package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()

	g := New()

	first, err := g.NewID()
	require.NoError(t, err)
	_, err = guuid.Parse(first)
	require.NoError(t, err)

	second, err := g.NewID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
