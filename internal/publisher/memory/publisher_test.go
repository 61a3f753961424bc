package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher(t *testing.T) {
	t.Parallel()

	p := New()

	id, err := p.Publish(context.Background(), "runs", map[string]int{"persisted": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)

	p.Fail(errors.New("broker down"))
	_, err = p.Publish(context.Background(), "runs", nil)
	require.Error(t, err)
	require.Len(t, p.Messages(), 1)
}
