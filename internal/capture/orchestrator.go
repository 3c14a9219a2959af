package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/addressbar"
	"github.com/JakeFAU/blogshot/internal/metrics"
)

// BatchCompletedEvent is published after every finished batch.
const BatchCompletedEvent = "capture.batch.completed"

// Config tunes the orchestrator.
type Config struct {
	NavigationTimeout time.Duration
	RenderTimeout     time.Duration
	// MaxConcurrentBatches bounds how many batches hold a browser at once.
	MaxConcurrentBatches int
	// MirrorPrefix is prepended to sessionID/filename for mirrored artifacts.
	MirrorPrefix string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMirror copies every composite to m after it is stored locally.
func WithMirror(m Mirror) Option {
	return func(o *Orchestrator) { o.mirror = m }
}

// WithPublisher announces finished batches on p.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithPacer spaces out navigations.
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// Orchestrator drives one browser across a batch of items, strictly in order.
type Orchestrator struct {
	launcher  Launcher
	store     ArtifactStore
	detector  RegionDetector
	mirror    Mirror
	publisher Publisher
	pacer     Pacer
	clock     Clock
	cfg       Config
	logger    *zap.Logger
	slots     chan struct{}
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(
	launcher Launcher,
	store ArtifactStore,
	detector RegionDetector,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if detector == nil {
		return nil, errors.New("region detector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = DefaultRenderTimeout
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 1
	}
	o := &Orchestrator{
		launcher: launcher,
		store:    store,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
		clock:    wallClock{},
		slots:    make(chan struct{}, cfg.MaxConcurrentBatches),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run captures every item and returns the session. Item failures are recorded
// in the results; only an engine failure or ctx cancellation aborts the batch,
// in which case no session is returned.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (*Session, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a capture slot: %w", ctx.Err())
	}
	defer func() { <-o.slots }()
	metrics.IncBatchesInFlight()
	defer metrics.DecBatchesInFlight()

	started := o.clock.Now()
	engine, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: launch: %v", ErrEngineUnavailable, err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			o.logger.Warn("failed to close automation engine", zap.Error(cerr))
		}
	}()

	sessionID, dir, err := o.store.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger := o.logger.With(zap.String("session_id", sessionID))
	logger.Info("capture batch started", zap.Int("items", len(items)))

	session := &Session{
		ID:        sessionID,
		Dir:       dir,
		StartedAt: started,
		Results:   make([]Result, 0, len(items)),
	}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("capture batch canceled: %w", err)
		}
		itemStart := o.clock.Now()
		result, err := o.captureItem(ctx, engine, sessionID, item)
		if err != nil {
			logger.Error("capture batch aborted",
				zap.Int("position", i),
				zap.String("link", item.Link),
				zap.Error(err),
			)
			return nil, err
		}
		metrics.ObserveCapture(item.Link, result.Success, o.clock.Now().Sub(itemStart))
		if result.Success {
			logger.Info("item captured",
				zap.Int("index", item.Index),
				zap.String("link", item.Link),
				zap.String("filename", result.Filename),
			)
		} else {
			logger.Warn("item capture failed",
				zap.Int("index", item.Index),
				zap.String("link", item.Link),
				zap.String("error", result.Error),
			)
		}
		session.Results = append(session.Results, result)
	}
	session.FinishedAt = o.clock.Now()

	summary := session.Summarize()
	if err := o.store.SaveManifest(ctx, sessionID, session); err != nil {
		logger.Warn("failed to save session manifest", zap.Error(err))
	}
	if o.publisher != nil {
		if _, err := o.publisher.Publish(ctx, BatchCompletedEvent, summary); err != nil {
			logger.Warn("failed to publish batch completion", zap.Error(err))
		}
	}
	metrics.ObserveBatch(session.FinishedAt.Sub(started))
	logger.Info("capture batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Duration("elapsed", session.FinishedAt.Sub(started)),
	)
	return session, nil
}

// captureItem returns a non-nil error only when the batch must abort.
func (o *Orchestrator) captureItem(ctx context.Context, engine Engine, sessionID string, item Item) (Result, error) {
	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, item.Link); err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("capture batch canceled: %w", ctx.Err())
			}
			return Failed(item, fmt.Errorf("pacing: %w", err)), nil
		}
	}

	tab, err := engine.NewContext(ctx)
	if err != nil {
		return o.classify(ctx, item, "open context", err)
	}
	defer o.release(tab)

	navCtx, cancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
	err = tab.Navigate(navCtx, item.Link)
	cancel()
	if err != nil {
		return o.classify(ctx, item, "navigate", err)
	}

	fallback := strings.TrimSpace(item.Title)
	if fallback == "" {
		fallback = DefaultFallbackTitle
	}
	// Scripts on a busy page can stall probes indefinitely; the detector
	// degrades to its default region once detectCtx expires.
	detectCtx, cancelDetect := context.WithTimeout(ctx, o.cfg.RenderTimeout)
	region := o.detector.Detect(detectCtx, tab, fallback)
	cancelDetect()
	metrics.ObserveRegionSource(string(region.Source))
	title := region.Title
	if strings.TrimSpace(title) == "" {
		title = fallback
	}

	renderCtx, cancelRender := context.WithTimeout(ctx, o.cfg.RenderTimeout)
	defer cancelRender()
	raster, err := tab.CaptureClip(renderCtx, DefaultCanvasWidth, region.BottomOffsetPx)
	if err != nil {
		return o.classify(ctx, item, "capture", err)
	}

	composite, err := o.compose(renderCtx, engine, item.Link, raster, region.BottomOffsetPx)
	if err != nil {
		return o.classify(ctx, item, "compose", err)
	}

	filename := Filename(item)
	if _, err := o.store.Write(ctx, sessionID, filename, bytes.NewReader(composite)); err != nil {
		return Failed(item, fmt.Errorf("store: %w", err)), nil
	}
	if o.mirror != nil {
		key := path.Join(o.cfg.MirrorPrefix, sessionID, filename)
		if _, err := o.mirror.PutObject(ctx, key, "image/png", bytes.NewReader(composite)); err != nil {
			o.logger.Warn("failed to mirror artifact", zap.String("key", key), zap.Error(err))
		}
	}
	return Succeeded(item, title, filename), nil
}

// compose renders the chrome-over-raster document in a second, transient context.
func (o *Orchestrator) compose(ctx context.Context, engine Engine, link string, raster []byte, contentHeight int) ([]byte, error) {
	tab, err := engine.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("open composite context: %w", err)
	}
	defer o.release(tab)
	markup := addressbar.Compose(link, raster, contentHeight)
	png, err := tab.RenderDocument(ctx, markup, addressbar.Width, addressbar.CompositeHeight(contentHeight))
	if err != nil {
		return nil, fmt.Errorf("render composite: %w", err)
	}
	return png, nil
}

// classify turns a per-item error into a Failure, or into a batch abort when
// the engine is gone or the caller canceled.
func (o *Orchestrator) classify(ctx context.Context, item Item, step string, err error) (Result, error) {
	if errors.Is(err, ErrEngineUnavailable) {
		return Result{}, fmt.Errorf("%s %s: %w", step, item.Link, err)
	}
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("capture batch canceled: %w", ctx.Err())
	}
	return Failed(item, fmt.Errorf("%s: %w", step, err)), nil
}

func (o *Orchestrator) release(tab BrowsingContext) {
	if err := tab.Close(); err != nil {
		o.logger.Debug("failed to close browsing context", zap.Error(err))
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
