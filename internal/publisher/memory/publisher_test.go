package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "chapters", map[string]int{"chapter": 1})
	require.NoError(t, err)
	id2, err := pub.Publish(context.Background(), "books", "done")
	require.NoError(t, err)

	require.Equal(t, "memory-1", id1)
	require.Equal(t, "memory-2", id2)
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "chapters", msgs[0].Topic)
	require.JSONEq(t, `{"chapter":1}`, string(msgs[0].Data))

	msgs[0].Topic = "modified"
	require.Equal(t, "chapters", pub.Messages()[0].Topic)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "t", make(chan int))

	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, New().Messages())
}
