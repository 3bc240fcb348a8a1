package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional YAML file, and
// environment variables, in increasing precedence. A non-empty path forces
// a specific config file; with "" the loader looks for autolabel.yaml in
// the working directory and silently proceeds on absence. Environment
// variables use the AUTOLABEL_ prefix with underscores for nesting, e.g.
// AUTOLABEL_SERVER_PORT or AUTOLABEL_DETECTOR_API_KEY.
// The result is validated before being returned.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("autolabel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AUTOLABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key with its default so environment binding
// sees the full key set.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")

	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.executor", "pool")
	v.SetDefault("pipeline.images_dir", "traffic_sign_data/images")
	v.SetDefault("pipeline.output_dir", "labeling_output")
	v.SetDefault("pipeline.event_buffer", 256)

	v.SetDefault("detector.api_key", "")
	v.SetDefault("detector.model", "gemini-2.0-flash")
	v.SetDefault("detector.timeout", 60*time.Second)
	v.SetDefault("detector.coord_base", 1000)
	v.SetDefault("detector.max_image_bytes", int64(20*1024*1024))
	v.SetDefault("detector.signs_dir", "")
	v.SetDefault("detector.crop_padding", 10)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", 2*time.Second)
	v.SetDefault("retry.backoff_factor", 2.0)

	v.SetDefault("review.enabled", true)
	v.SetDefault("review.sample_rate", 0.05)
	v.SetDefault("review.min_box_area", 100)
	v.SetDefault("review.max_area_ratio", 0.7)
	v.SetDefault("review.overlap_iou", 0.9)

	v.SetDefault("video.dir", "traffic_sign_data/videos/raw_videos")
	v.SetDefault("video.frames_dir", "temp_frames")
	v.SetDefault("video.dataset_dir", "dataset_output")
	v.SetDefault("video.fps", 3)
	v.SetDefault("video.ffmpeg", "ffmpeg")
	v.SetDefault("video.ffprobe", "ffprobe")
	v.SetDefault("video.extra_args", "")
}
