package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/api"
	apiMiddleware "github.com/yizhengyuan/Traffic-AutoLabel/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	cfg := app.config
	taskHandler := api.NewTaskHandler(app.manager, app.logger)
	statusHandler := api.NewStatusHandler(app.manager, api.StatusConfig{
		Workers:      cfg.Pipeline.Workers,
		ImagesDir:    cfg.Pipeline.ImagesDir,
		OutputDir:    cfg.Pipeline.OutputDir,
		EnableReview: cfg.Review.Enabled,
		ReviewRate:   cfg.Review.SampleRate,
	}, app.logger)
	imageHandler := api.NewImageHandler([]string{
		cfg.Pipeline.OutputDir,
		cfg.Pipeline.ImagesDir,
		cfg.Video.FramesDir,
		cfg.Video.DatasetDir,
	}, app.logger)
	streamHandler := api.NewStreamHandler(app.bus, app.logger)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusHandler.GetStatus)
		r.Get("/videos", taskHandler.ListVideos)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)
			r.Post("/video", taskHandler.CreateVideoTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Delete("/", taskHandler.DeleteTask)
				r.Post("/start", taskHandler.StartTask)
				r.Post("/stop", taskHandler.StopTask)
				r.Get("/issues", taskHandler.GetIssues)
				r.Get("/frames", taskHandler.GetRecentFrames)
				r.Get("/frames/{frameID}", taskHandler.GetFrame)
			})
		})

		// Annotated previews and source frames for the dashboard
		r.Get("/images/*", imageHandler.GetImage)
	})

	// Live event streams
	r.Get("/ws/live", streamHandler.StreamAll)
	r.Get("/ws/live/{taskID}", streamHandler.StreamTask)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
