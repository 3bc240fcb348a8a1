package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
)

var (
	servePort       int
	serveHost       string
	serveWorkers    int
	serveImagesDir  string
	serveOutputDir  string
	serveReviewRate float64
	serveNoReview   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Serve starts the dashboard API: task management over REST, live
progress over WebSocket, and annotated image previews.

The server starts without a detector API key; tasks created through the
API then fail on start until a key is configured. Labeling runs resume by
default, skipping frames that already have an annotation record.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().
		IntVar(&serveWorkers, "workers", 0, "default workers per task (overrides config)")
	serveCmd.Flags().
		StringVar(&serveImagesDir, "images-dir", "", "image source directory (overrides config)")
	serveCmd.Flags().
		StringVar(&serveOutputDir, "output-dir", "", "annotation output directory (overrides config)")
	serveCmd.Flags().
		Float64Var(&serveReviewRate, "review-rate", 0, "deep review sample rate (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoReview, "no-review", false, "disable annotation review")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override the file and environment
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = serveWorkers
	}
	if cmd.Flags().Changed("images-dir") {
		cfg.Pipeline.ImagesDir = serveImagesDir
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Pipeline.OutputDir = serveOutputDir
	}
	if cmd.Flags().Changed("review-rate") {
		cfg.Review.SampleRate = serveReviewRate
	}
	if serveNoReview {
		cfg.Review.Enabled = false
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx := cmd.Context()
	app, err := newApplication(ctx, cfg, log, true)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
