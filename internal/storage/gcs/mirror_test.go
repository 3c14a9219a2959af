package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = New(&storage.Client{}, Config{Bucket: "  "})
	require.Error(t, err)

	m, err := New(&storage.Client{}, Config{Bucket: "captures", Prefix: "/blogshot/"})
	require.NoError(t, err)
	require.Equal(t, "blogshot", m.prefix)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "session/a.png", ObjectName("", "/session/a.png"))
	require.Equal(t, "blogshot/session/a.png", ObjectName("blogshot", "session/a.png"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	m, err := New(&storage.Client{}, Config{Bucket: "captures"})
	require.NoError(t, err)
	_, err = m.PutObject(context.Background(), " ", "image/png", nil)
	require.Error(t, err)
}
