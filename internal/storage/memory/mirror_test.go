package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMirrorPutObject(t *testing.T) {
	t.Parallel()

	m := NewMirror()
	data := []byte("png")
	uri, err := m.PutObject(context.Background(), "s1/b.png", "image/png", bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "memory://s1/b.png", uri)

	_, err = m.PutObject(context.Background(), "s1/a.png", "image/png", bytes.NewReader(nil))
	require.NoError(t, err)

	data[0] = 'x'
	obj, ok := m.Get("s1/b.png")
	require.True(t, ok)
	require.Equal(t, []byte("png"), obj.Data, "stored bytes are copied")
	require.Equal(t, "image/png", obj.ContentType)
	require.Equal(t, []string{"s1/a.png", "s1/b.png"}, m.Paths())

	_, ok = m.Get("missing")
	require.False(t, ok)
}
