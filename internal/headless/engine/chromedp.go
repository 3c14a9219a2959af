// Package engine provisions headless Chrome through chromedp and exposes the
// isolated browsing contexts the capture pipeline drives.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/headless/detector"
)

// Config controls how Chrome is launched.
type Config struct {
	// ExecPath overrides the Chrome binary; empty means chromedp's lookup.
	ExecPath string `mapstructure:"exec_path"`
	// Headless runs without a window. Defaults to true in configuration.
	Headless bool `mapstructure:"headless"`
	// NoSandbox disables the Chrome sandbox, typically inside containers.
	NoSandbox bool `mapstructure:"no_sandbox"`
	// UserAgent overrides the browser user agent when set.
	UserAgent string `mapstructure:"user_agent"`
	// ViewportWidth is the emulated window width; captures are clipped to it.
	ViewportWidth int `mapstructure:"viewport_width"`
	// ViewportHeight is the emulated window height.
	ViewportHeight int `mapstructure:"viewport_height"`
	// LaunchTimeout bounds the browser start.
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
	// ExtraFlags are passed to Chrome as --flag or --flag=value.
	ExtraFlags []string `mapstructure:"extra_flags"`
}

const (
	defaultViewportHeight = 900
	defaultLaunchTimeout  = 30 * time.Second
)

// AllocatorOptions translates cfg into chromedp exec allocator options.
func AllocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	width, height := viewport(cfg)
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, raw := range cfg.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(raw), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func viewport(cfg Config) (int, int) {
	width := cfg.ViewportWidth
	if width <= 0 {
		width = capture.DefaultCanvasWidth
	}
	height := cfg.ViewportHeight
	if height <= 0 {
		height = defaultViewportHeight
	}
	return width, height
}

// Launcher starts one Chrome process per batch.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = defaultLaunchTimeout
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Launch starts Chrome and waits until the browser accepts commands.
func (l *Launcher) Launch(ctx context.Context) (capture.Engine, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(l.cfg)...)
	sugar := l.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(sugar.Debugf))

	// The first Run starts the browser; its context must not carry a deadline
	// or the browser dies with it.
	timer := time.AfterFunc(l.cfg.LaunchTimeout, browserCancel)
	stopForward := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stopForward()
	timer.Stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	width, height := viewport(l.cfg)
	l.logger.Debug("chrome started", zap.Int("viewport_width", width), zap.Int("viewport_height", height))
	return &Engine{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		width:         width,
		height:        height,
		logger:        l.logger,
	}, nil
}

// Engine is one running Chrome process.
type Engine struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	width         int
	height        int
	logger        *zap.Logger
	closeOnce     sync.Once
}

// NewContext opens a tab in a fresh browser context, so cookies and storage
// never leak between items.
func (e *Engine) NewContext(ctx context.Context) (capture.BrowsingContext, error) {
	if err := e.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrEngineUnavailable, err)
	}
	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	tab := &Tab{ctx: tabCtx, cancel: cancel, engine: e}

	stopForward := forwardCancel(ctx, cancel)
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(e.width), int64(e.height)),
		page.SetLifecycleEventsEnabled(true),
	)
	stopForward()
	if err != nil {
		cancel()
		return nil, e.wrap("open browsing context", err)
	}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		tab.idle.frameID = cdp.FrameID(c.Target.TargetID)
	}
	chromedp.ListenTarget(tabCtx, tab.idle.observe)
	return tab, nil
}

// Close terminates the browser process.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.browserCancel()
		e.allocCancel()
	})
	return nil
}

func (e *Engine) wrap(step string, err error) error {
	if e.browserCtx.Err() != nil {
		return fmt.Errorf("%s: %w: %v", step, capture.ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// Tab is one isolated browsing context.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *Engine
	idle   idleTracker
}

// Navigate loads rawURL and waits for the network to go idle.
func (t *Tab) Navigate(ctx context.Context, rawURL string) error {
	settled := t.idle.arm()
	err := t.run(ctx, chromedp.Navigate(rawURL))
	if err != nil {
		return t.engine.wrap("navigate", err)
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for network idle: %w", ctx.Err())
	case <-t.ctx.Done():
		return t.engine.wrap("wait for network idle", t.ctx.Err())
	}
}

// Probe measures the first element matching selector.
func (t *Tab) Probe(ctx context.Context, selector string) (detector.Element, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return detector.Element{}, fmt.Errorf("quote selector: %w", err)
	}
	var res probeResult
	if err := t.run(ctx, chromedp.Evaluate(fmt.Sprintf(probeScript, quoted), &res)); err != nil {
		return detector.Element{}, t.engine.wrap("probe "+selector, err)
	}
	return detector.Element(res), nil
}

// Title returns document.title.
func (t *Tab) Title(ctx context.Context) (string, error) {
	var title string
	if err := t.run(ctx, chromedp.Title(&title)); err != nil {
		return "", t.engine.wrap("read title", err)
	}
	return title, nil
}

// CaptureClip screenshots {0, 0, width, height} in page coordinates.
func (t *Tab) CaptureClip(ctx context.Context, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid clip %dx%d", width, height)
	}
	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{X: 0, Y: 0, Width: float64(width), Height: float64(height), Scale: 1}).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, t.engine.wrap("capture", err)
	}
	return buf, nil
}

// RenderDocument replaces the page with markup, waits for its images, and
// screenshots width x height.
func (t *Tab) RenderDocument(ctx context.Context, markup string, width, height int) ([]byte, error) {
	var ready bool
	err := t.run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			if err := page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx); err != nil {
				return fmt.Errorf("set document content: %w", err)
			}
			return nil
		}),
		chromedp.Evaluate(imagesReadyScript, &ready, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, t.engine.wrap("render document", err)
	}
	if !ready {
		return nil, errors.New("composite images failed to decode")
	}
	return t.CaptureClip(ctx, width, height)
}

// Close releases the tab and its browser context.
func (t *Tab) Close() error {
	t.cancel()
	return nil
}

// run executes actions on the tab, bounded by ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		cancel()
		runCtx, cancel = context.WithDeadline(t.ctx, deadline)
	}
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// idleTracker turns lifecycle events of the main frame into a one-shot
// "network idle" signal per navigation.
type idleTracker struct {
	mu      sync.Mutex
	frameID cdp.FrameID
	armed   bool
	started bool
	done    chan struct{}
}

func (i *idleTracker) arm() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.done = make(chan struct{})
	i.armed = true
	i.started = false
	return i.done
}

func (i *idleTracker) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.armed || (i.frameID != "" && e.FrameID != i.frameID) {
		return
	}
	switch e.Name {
	case "init":
		i.started = true
	case "networkIdle":
		if i.started {
			close(i.done)
			i.armed = false
		}
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type probeResult struct {
	Found   bool    `json:"found"`
	Visible bool    `json:"visible"`
	Text    string  `json:"text"`
	Bottom  float64 `json:"bottom"`
}

const probeScript = `(function(sel) {
  var el = null;
  try { el = document.querySelector(sel); } catch (e) { el = null; }
  if (!el) { return {found: false, visible: false, text: "", bottom: 0}; }
  var r = el.getBoundingClientRect();
  var st = window.getComputedStyle(el);
  var visible = r.width > 0 && r.height > 0 && st.visibility !== "hidden" && st.display !== "none";
  var text = (el.innerText || el.textContent || "").trim();
  return {found: true, visible: visible, text: text, bottom: r.bottom + window.scrollY};
})(%s)`

const imagesReadyScript = `Promise.all(Array.from(document.images).map(function(img) {
  if (img.complete) { return img.naturalWidth > 0; }
  return new Promise(function(resolve) {
    img.addEventListener("load", function() { resolve(true); });
    img.addEventListener("error", function() { resolve(false); });
  });
})).then(function(all) { return all.every(Boolean); })`
