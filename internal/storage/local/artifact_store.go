// Package local implements the filesystem-backed artifact store. Every capture
// batch owns one directory, <base>/<sessionID>, holding its composite PNGs and
// a manifest.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ManifestName is the per-session summary file written after a batch.
const ManifestName = "manifest.json"

var (
	// ErrNotFound reports a missing session or artifact.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidSession rejects identifiers that are not issued session ids.
	ErrInvalidSession = errors.New("invalid session id")
)

// IDGenerator produces session identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the root directory holding one subdirectory per session.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store reads and writes session directories on the local filesystem.
type Store struct {
	baseDir string
	ids     IDGenerator
}

// New creates a store rooted at cfg.BaseDir, creating it if needed and
// verifying that it is writable.
func New(cfg Config, ids IDGenerator) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &Store{baseDir: abs, ids: ids}, nil
}

// BaseDir returns the absolute root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// CreateSession allocates a new session id and its directory.
func (s *Store) CreateSession(_ context.Context) (string, string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", "", fmt.Errorf("generate session id: %w", err)
	}
	if err := ValidateSessionID(id); err != nil {
		return "", "", err
	}
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("create session directory: %w", err)
	}
	return id, dir, nil
}

// Exists reports whether a session directory is present.
func (s *Store) Exists(sessionID string) bool {
	if ValidateSessionID(sessionID) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.baseDir, sessionID))
	return err == nil && info.IsDir()
}

// Resolve returns the absolute path of an existing artifact.
func (s *Store) Resolve(sessionID, filename string) (string, error) {
	path, err := s.artifactPath(sessionID, filename)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%s/%s: %w", sessionID, filename, ErrNotFound)
	}
	return path, nil
}

// Write stores data as sessionID/filename, replacing any previous artifact
// with the same name, and returns the absolute path.
func (s *Store) Write(_ context.Context, sessionID, filename string, data io.Reader) (string, error) {
	if !s.Exists(sessionID) {
		return "", fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	path, err := s.artifactPath(sessionID, filename)
	if err != nil {
		return "", err
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, byteData, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}
	return path, nil
}

// SaveManifest writes manifest as JSON into the session directory.
func (s *Store) SaveManifest(ctx context.Context, sessionID string, manifest any) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := s.Write(ctx, sessionID, ManifestName, strings.NewReader(string(payload))); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest decodes the session manifest into v.
func (s *Store) LoadManifest(sessionID string, v any) error {
	path, err := s.Resolve(sessionID, ManifestName)
	if err != nil {
		return err
	}
	// #nosec G304 -- path is confined to the session directory by artifactPath.
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	return nil
}

// Prune removes session directories last modified before cutoff and returns
// how many were deleted.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("prune canceled: %w", err)
		}
		if !entry.IsDir() || ValidateSessionID(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove session %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) artifactPath(sessionID, filename string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	if strings.TrimSpace(filename) == "" || filename != filepath.Base(filename) ||
		filename == "." || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid artifact name %q: %w", filename, ErrNotFound)
	}
	sessionDir := filepath.Join(s.baseDir, sessionID)
	fullPath := filepath.Clean(filepath.Join(sessionDir, filename))
	if !strings.HasPrefix(fullPath, sessionDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// ValidateSessionID accepts only the UUID form issued by CreateSession.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%q: %w", id, ErrInvalidSession)
	}
	return nil
}
