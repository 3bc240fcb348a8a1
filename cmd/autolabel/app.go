package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/batch"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/detection"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/engine"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/events"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/gemini"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/render"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/retry"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/review"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/task"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/video"
)

// unconfiguredDetector stands in when no API key is set. Every call fails
// with ErrInvalidConfig so task runs surface the missing key through the
// normal error path instead of the server refusing to start.
type unconfiguredDetector struct{}

func (unconfiguredDetector) Detect(context.Context, string) ([]domain.Detection, error) {
	return nil, fmt.Errorf("%w: no API key set", detection.ErrInvalidConfig)
}

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	bus    *events.Bus

	// Pipeline
	engine  *engine.Engine
	manager *task.Manager
}

// newApplication creates a new application instance with all dependencies
// initialized. resume controls whether labeling runs skip frames that
// already have an annotation record.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, resume bool) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	app.bus = events.NewBus(logger, cfg.Pipeline.EventBuffer)

	// Initialize the detector. Without a key the serve command still comes
	// up; any run started against the stand-in fails with a config error.
	var (
		detector   detection.Detector
		classifier detection.SignClassifier
		auditor    detection.Auditor
	)
	if cfg.Detector.APIKey != "" {
		client, err := gemini.New(ctx, logger.With("component", "gemini"), cfg.Detector)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize detector: %w", err)
		}
		detector = client
		classifier = client
		auditor = client
		logger.Info("Detector initialized", "model", cfg.Detector.Model)
	} else {
		detector = unconfiguredDetector{}
		logger.Warn("No detector API key configured, task runs will fail until one is set")
	}

	renderer := render.NewPreviewer()

	deps := batch.Deps{
		Logger:     logger,
		Bus:        app.bus,
		Detector:   detector,
		Classifier: classifier,
		Renderer:   renderer,
		Retry: retry.Config{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			Delay:         cfg.Retry.Delay,
			BackoffFactor: cfg.Retry.BackoffFactor,
		},
	}
	if cfg.Review.Enabled {
		reviewCfg := cfg.Review
		deps.NewReviewer = func() batch.Reviewer {
			return review.NewRuleReviewer(reviewCfg)
		}
		if auditor != nil && reviewCfg.SampleRate > 0 {
			deps.DeepReviewer = review.NewDeepReviewer(logger, auditor, reviewCfg.SampleRate)
		}
	}

	var (
		processor batch.Processor
		err       error
	)
	switch cfg.Pipeline.Executor {
	case "async":
		processor, err = batch.NewAsync(deps)
	default:
		processor, err = batch.NewPool(deps)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor: %w", err)
	}

	extractor, err := video.NewExtractor(logger, cfg.Video)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize frame extractor: %w", err)
	}

	packager, err := video.NewPackager(logger, cfg.Video.DatasetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dataset packager: %w", err)
	}

	app.engine, err = engine.New(engine.Deps{
		Logger:    logger,
		Bus:       app.bus,
		Processor: processor,
		Extractor: extractor,
		Packager:  packager,
		Renderer:  renderer,
		Resume:    resume,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	library := video.NewLibrary(cfg.Video.Dir)
	app.manager, err = task.NewManager(logger, app.bus, app.engine, library, task.ManagerConfig{
		ImagesDir: cfg.Pipeline.ImagesDir,
		OutputDir: cfg.Pipeline.OutputDir,
		FramesDir: cfg.Video.FramesDir,
		Workers:   cfg.Pipeline.Workers,
		FPS:       cfg.Video.FPS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task manager: %w", err)
	}

	logger.Info("Application initialized successfully",
		"executor", cfg.Pipeline.Executor,
		"workers", cfg.Pipeline.Workers,
		"review_enabled", cfg.Review.Enabled)
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.manager != nil {
		app.manager.Shutdown()
	}
	app.logger.Info("Application shutdown completed")
}
