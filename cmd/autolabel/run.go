package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/task"
)

var (
	runPrefix    string
	runLimit     int
	runWorkers   int
	runRefine    bool
	runImagesDir string
	runOutputDir string
	runNoResume  bool
	runEngine    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Label a batch of images and exit",
	Long: `Run executes one labeling pass over the images matching the prefix
and exits when the batch is done. Progress goes to the log; a summary is
printed at the end.

Interrupting the run requests a cooperative stop: in-flight frames finish
and their annotations are kept, so the same command resumes where it left
off unless --no-resume is set.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().
		StringVar(&runPrefix, "prefix", "", "image filename prefix to label (required)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max images to label, 0 for all")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent workers (overrides config)")
	runCmd.Flags().
		BoolVar(&runRefine, "refine", false, "refine generic sign labels with a second model pass")
	runCmd.Flags().
		StringVar(&runImagesDir, "images-dir", "", "image source directory (overrides config)")
	runCmd.Flags().
		StringVar(&runOutputDir, "output-dir", "", "annotation output directory (overrides config)")
	runCmd.Flags().
		BoolVar(&runNoResume, "no-resume", false, "relabel frames that already have annotations")
	runCmd.Flags().
		StringVar(&runEngine, "engine", "", "processing substrate: pool or async (overrides config)")
	_ = runCmd.MarkFlagRequired("prefix")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override the file and environment
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = runWorkers
	}
	if cmd.Flags().Changed("images-dir") {
		cfg.Pipeline.ImagesDir = runImagesDir
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Pipeline.OutputDir = runOutputDir
	}
	if cmd.Flags().Changed("engine") {
		if runEngine != "pool" && runEngine != "async" {
			return fmt.Errorf("invalid --engine %q: must be pool or async", runEngine)
		}
		cfg.Pipeline.Executor = runEngine
	}

	// Unlike serve, a one-shot run is pointless without a detector.
	if cfg.Detector.APIKey == "" {
		return fmt.Errorf(
			"run requires a detector API key; set AUTOLABEL_DETECTOR_API_KEY or detector.api_key",
		)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx := cmd.Context()
	app, err := newApplication(ctx, cfg, log, !runNoResume)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	t, err := app.manager.CreateImagesTask(task.CreateImagesParams{
		Prefix:    runPrefix,
		UseRefine: runRefine,
		Limit:     runLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	// An interrupt raises the task's stop flag; in-flight frames finish
	// and the run returns with a partial summary.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopCh)
	go func() {
		<-stopCh
		log.Info("Interrupt received, stopping after in-flight frames", "task_id", t.ID)
		t.RequestStop()
	}()

	if err := app.engine.Run(ctx, t); err != nil {
		return fmt.Errorf("labeling failed: %w", err)
	}

	total, completed, failed := t.Counters()
	fmt.Printf("Labeled %d/%d frames (%d failed)\n", completed, total, failed)
	fmt.Printf("Annotations: %s\n", t.AnnotationsDir)
	return nil
}
