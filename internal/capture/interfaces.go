package capture

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/blogshot/internal/headless/detector"
)

// Launcher provisions an automation engine scoped to one batch.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// Engine is a running browser shared by every item of a batch.
type Engine interface {
	// NewContext opens an isolated browsing context (own cookies and DOM).
	NewContext(ctx context.Context) (BrowsingContext, error)
	Close() error
}

// BrowsingContext is one isolated tab. Errors wrapping ErrEngineUnavailable
// signal that the engine itself has gone away.
type BrowsingContext interface {
	detector.Page
	// Navigate loads url and waits for network activity to settle.
	Navigate(ctx context.Context, url string) error
	// CaptureClip rasterizes the region {0, 0, width, height} of the page as PNG.
	CaptureClip(ctx context.Context, width, height int) ([]byte, error)
	// RenderDocument loads markup as the page content and rasterizes width x height as PNG.
	RenderDocument(ctx context.Context, markup string, width, height int) ([]byte, error)
	Close() error
}

// RegionDetector locates the content region of a loaded page.
type RegionDetector interface {
	Detect(ctx context.Context, page detector.Page, fallbackTitle string) detector.Region
}

// ArtifactStore owns the session directories.
type ArtifactStore interface {
	CreateSession(ctx context.Context) (id string, dir string, err error)
	Write(ctx context.Context, sessionID, filename string, data io.Reader) (string, error)
	SaveManifest(ctx context.Context, sessionID string, manifest any) error
}

// Mirror copies artifacts to a secondary blob store.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher announces finished batches.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer spaces out navigations per host.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
