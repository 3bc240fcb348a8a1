package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
	Detector DetectorConfig `mapstructure:"detector" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry" validate:"required"`
	Review   ReviewConfig   `mapstructure:"review" validate:"required"`
	Video    VideoConfig    `mapstructure:"video" validate:"required"`
}

// ServerConfig contains the dashboard server settings.
type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile mirrors log output into a file when set.
	LogFile string `mapstructure:"log_file"`
}

// PipelineConfig contains the batch processing settings shared by both
// execution substrates.
type PipelineConfig struct {
	// Workers is the worker pool size, or the permit count of the
	// semaphore substrate.
	Workers int `mapstructure:"workers" validate:"required,gte=1,lte=64"`
	// Executor selects the processing substrate: a fixed worker pool or
	// per-item goroutines gated by a semaphore.
	Executor    string `mapstructure:"executor" validate:"required,oneof=pool async"`
	ImagesDir   string `mapstructure:"images_dir" validate:"required"`
	OutputDir   string `mapstructure:"output_dir" validate:"required"`
	EventBuffer int    `mapstructure:"event_buffer" validate:"gte=0"`
}

// DetectorConfig contains the vision model integration settings.
type DetectorConfig struct {
	// APIKey may be empty at load time; the serve command runs without a
	// detector until one is configured, run refuses to start.
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`
	// CoordBase is the grid the model normalizes coordinates to.
	CoordBase     int   `mapstructure:"coord_base" validate:"required,gt=0"`
	MaxImageBytes int64 `mapstructure:"max_image_bytes" validate:"required,gt=0"`
	// SignsDir points at the sign template library used by the refinement
	// pass; refinement degrades to generic labels when unset.
	SignsDir    string `mapstructure:"signs_dir"`
	CropPadding int    `mapstructure:"crop_padding" validate:"gte=0"`
}

// RetryConfig controls the bounded-attempt executor around model calls.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
	Delay         time.Duration `mapstructure:"delay" validate:"required"`
	BackoffFactor float64       `mapstructure:"backoff_factor" validate:"required,gte=1"`
}

// ReviewConfig controls the annotation quality review passes.
type ReviewConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SampleRate is the fraction of frames sent to the deep model review.
	SampleRate   float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MinBoxArea   int     `mapstructure:"min_box_area" validate:"gte=0"`
	MaxAreaRatio float64 `mapstructure:"max_area_ratio" validate:"gt=0,lte=1"`
	OverlapIoU   float64 `mapstructure:"overlap_iou" validate:"gt=0,lte=1"`
}

// VideoConfig contains video library and frame extraction settings.
type VideoConfig struct {
	Dir        string `mapstructure:"dir" validate:"required"`
	FramesDir  string `mapstructure:"frames_dir" validate:"required"`
	DatasetDir string `mapstructure:"dataset_dir" validate:"required"`
	FPS        int    `mapstructure:"fps" validate:"required,gte=1,lte=60"`
	FFmpeg     string `mapstructure:"ffmpeg" validate:"required"`
	FFprobe    string `mapstructure:"ffprobe" validate:"required"`
	// ExtraArgs is appended to the ffmpeg command line, split shell-style.
	ExtraArgs string `mapstructure:"extra_args"`
}
