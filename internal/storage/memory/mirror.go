// Package memory keeps mirrored artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Object is one mirrored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// Mirror stores artifacts in-memory and returns memory:// URIs.
type Mirror struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMirror creates a new in-memory mirror.
func NewMirror() *Mirror {
	return &Mirror{objects: make(map[string]Object)}
}

// PutObject persists the content and returns a URI.
func (m *Mirror) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = Object{ContentType: contentType, Data: append([]byte(nil), byteData...)}
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a stored object.
func (m *Mirror) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj, ok
}

// Paths lists stored object paths in lexical order.
func (m *Mirror) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
