package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("capture.batch.completed", map[string]any{"sessionId": "s1", "total": 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"sessionId":"s1","total":2}`, string(msg.Data))
	require.Equal(t, "capture.batch.completed", msg.Attributes[EventAttribute])

	_, err = NewMessage("x", make(chan int))
	require.Error(t, err)
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "capture.batch.completed", struct{}{})
	require.Error(t, err)
}
