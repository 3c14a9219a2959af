// Package server builds the application graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/api"
	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/clock/system"
	"github.com/JakeFAU/blogshot/internal/config"
	"github.com/JakeFAU/blogshot/internal/headless/detector"
	"github.com/JakeFAU/blogshot/internal/headless/engine"
	"github.com/JakeFAU/blogshot/internal/id/uuid"
	"github.com/JakeFAU/blogshot/internal/logging"
	"github.com/JakeFAU/blogshot/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/blogshot/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/blogshot/internal/publisher/pubsub"
	"github.com/JakeFAU/blogshot/internal/report"
	gcsstorage "github.com/JakeFAU/blogshot/internal/storage/gcs"
	localstorage "github.com/JakeFAU/blogshot/internal/storage/local"
	memorystorage "github.com/JakeFAU/blogshot/internal/storage/memory"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	orchestrator    *capture.Orchestrator
	exporter        *report.Exporter
	store           *localstorage.Store
	janitor         *localstorage.Janitor
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Only non-sensitive fields are logged.
	type SanitizedConfig struct {
		ServerPort    int    `json:"server_port"`
		AuthEnabled   bool   `json:"auth_enabled"`
		BaseDir       string `json:"base_dir"`
		MirrorBackend string `json:"mirror_backend,omitempty"`
		Headless      bool   `json:"headless"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:    cfg.Server.Port,
		AuthEnabled:   cfg.Auth.Enabled,
		BaseDir:       cfg.Storage.BaseDir,
		MirrorBackend: cfg.Mirror.Backend,
		Headless:      cfg.Browser.Headless,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Capture runs one batch through the pipeline.
func (a *App) Capture(ctx context.Context, items []capture.Item) (*capture.Session, error) {
	return a.orchestrator.Run(ctx, items)
}

// Export writes the report workbook for a finished session.
func (a *App) Export(ctx context.Context, sessionID string, results []capture.Result, w io.Writer) error {
	return a.exporter.Export(ctx, sessionID, results, w)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.janitor != nil {
		go func() {
			a.logger.Info("retention janitor started",
				zap.Duration("retention", a.cfg.Retention()),
				zap.Duration("interval", a.cfg.PruneInterval()),
			)
			a.janitor.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Request contexts derive from ctx so in-flight batches abort on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownTimeout := time.Duration(a.cfg.Server.ShutdownTimeoutSec) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-errCh:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close releases clients and flushes the logger.
func (a *App) Close(_ context.Context) error {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	a.closeObservability()
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability() {
	// Sync on stderr returns EINVAL on some platforms; nothing to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies. The browser is not started
// here; each batch launches its own.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	app.logger.Info("building application dependencies")

	app.store, err = localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir}, uuid.NewUUIDGenerator())
	if err != nil {
		return nil, fmt.Errorf("artifact store init failed: %w", err)
	}
	app.logger.Debug("artifact store", zap.String("path", app.store.BaseDir()))

	clock := system.New()
	if cfg.Retention() > 0 {
		app.janitor = localstorage.NewJanitor(
			app.store,
			cfg.Retention(),
			cfg.PruneInterval(),
			clock.Now,
			logger.Named("janitor"),
		)
	}

	mirror, err := setupMirror(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	pacer := ratelimit.New(ratelimit.Config{
		PerHostQPS: cfg.Capture.DomainQPS,
		Burst:      cfg.Capture.DomainBurst,
	})
	app.logger.Info("navigation pacing", zap.Stringer("limit", pacer))

	launcher := engine.NewLauncher(engine.Config{
		ExecPath:       cfg.Browser.ExecPath,
		Headless:       cfg.Browser.Headless,
		NoSandbox:      cfg.Browser.NoSandbox,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  capture.DefaultCanvasWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		LaunchTimeout:  time.Duration(cfg.Browser.LaunchTimeoutSec) * time.Second,
		ExtraFlags:     cfg.Browser.ExtraFlags,
	}, logger.Named("engine"))

	detect := detector.NewHeuristic(logger.Named("detector"), cfg.Capture.Selectors...)

	opts := []capture.Option{
		capture.WithPublisher(publisher),
		capture.WithPacer(pacer),
		capture.WithClock(clock),
	}
	if mirror != nil {
		opts = append(opts, capture.WithMirror(mirror))
	}
	app.orchestrator, err = capture.NewOrchestrator(
		launcher,
		app.store,
		detect,
		capture.Config{
			NavigationTimeout:    cfg.NavigationTimeout(),
			RenderTimeout:        cfg.RenderTimeout(),
			MaxConcurrentBatches: cfg.Capture.MaxConcurrentBatches,
			MirrorPrefix:         cfg.Mirror.Prefix,
		},
		logger.Named("capture"),
		opts...,
	)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	app.logger.Info("capture config",
		zap.Duration("navigation_timeout", cfg.NavigationTimeout()),
		zap.Duration("render_timeout", cfg.RenderTimeout()),
		zap.Int("max_concurrent_batches", cfg.Capture.MaxConcurrentBatches),
	)

	app.exporter = report.NewExporter(app.store, logger.Named("report"))

	app.apiServer = api.NewServer(
		app.orchestrator,
		app.exporter,
		app.store,
		*cfg,
		logger.Named("api"),
	)
	return app, nil
}

func setupMirror(ctx context.Context, app *App) (capture.Mirror, error) {
	switch app.cfg.Mirror.Backend {
	case config.MirrorGCS:
		app.logger.Info("using GCS artifact mirror")
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		mirror, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Mirror.GCSBucket,
			Prefix: app.cfg.Mirror.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs mirror init failed: %w", err)
		}
		app.logger.Debug("GCS artifact mirror", zap.String("bucket", app.cfg.Mirror.GCSBucket))
		return mirror, nil
	case config.MirrorMemory:
		app.logger.Info("using in-memory artifact mirror")
		return memorystorage.NewMirror(), nil
	default:
		app.logger.Debug("artifact mirror disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (capture.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}
