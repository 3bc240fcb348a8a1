package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
)

// probeTimeout bounds the ffprobe duration lookup.
const probeTimeout = 10 * time.Second

// FFmpegExtractor decodes videos into numbered JPEG frames by shelling out
// to ffmpeg. Progress is read from ffmpeg's machine-readable progress
// stream and scaled against the duration reported by ffprobe.
type FFmpegExtractor struct {
	logger    *slog.Logger
	ffmpeg    string
	ffprobe   string
	extraArgs []string
}

// NewExtractor creates an extractor from the video configuration.
//
// Parameters:
//   - logger: the logger for extraction diagnostics.
//   - cfg: binary paths, and optional extra ffmpeg arguments which are
//     split shell-style.
//
// Returns:
//   - *FFmpegExtractor: the configured extractor.
//   - error: if the logger is nil or the extra arguments cannot be parsed.
func NewExtractor(logger *slog.Logger, cfg config.VideoConfig) (*FFmpegExtractor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var extra []string
	if cfg.ExtraArgs != "" {
		args, err := shlex.Split(cfg.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("parse ffmpeg extra args: %w", err)
		}
		extra = args
	}

	return &FFmpegExtractor{
		logger:    logger,
		ffmpeg:    cfg.FFmpeg,
		ffprobe:   cfg.FFprobe,
		extraArgs: extra,
	}, nil
}

// Extract implements detection.Extractor. It samples source at fps frames
// per second into destDir as <prefix>_000001.jpg onward, removing any
// leftover frames from a previous run first. onProgress receives values in
// [0, 1] while ffmpeg runs; it may be nil.
func (e *FFmpegExtractor) Extract(ctx context.Context, source string, fps int, destDir, prefix string, onProgress func(float64)) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	if err := clearFrames(destDir); err != nil {
		return nil, err
	}

	duration := e.probeDuration(ctx, source)

	pattern := filepath.Join(destDir, prefix+"_%06d.jpg")
	args := e.extractArgs(source, fps, pattern)

	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.InfoContext(ctx, "extracting frames",
		"source", source,
		"fps", fps,
		"dest", destDir)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		micros, ok := parseOutTime(scanner.Text())
		if !ok || onProgress == nil || duration <= 0 {
			continue
		}
		onProgress(extractProgress(micros, duration))
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 400))
	}
	if onProgress != nil {
		onProgress(1.0)
	}

	frames, err := filepath.Glob(filepath.Join(destDir, prefix+"_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", source)
	}
	sort.Strings(frames)

	e.logger.InfoContext(ctx, "frames extracted",
		"source", source,
		"count", len(frames))
	return frames, nil
}

// extractArgs builds the ffmpeg command line. Extra arguments go between
// the quality flag and the output pattern so they can override encoding
// settings without disturbing the progress stream.
func (e *FFmpegExtractor) extractArgs(source string, fps int, pattern string) []string {
	args := []string{
		"-i", source,
		"-vf", fmt.Sprintf("fps=%d", fps),
		"-q:v", "2",
	}
	args = append(args, e.extraArgs...)
	return append(args, pattern, "-y", "-progress", "pipe:1")
}

// probeDuration asks ffprobe for the video duration in seconds. Failures
// degrade to 0, which disables progress scaling but not extraction.
func (e *FFmpegExtractor) probeDuration(ctx context.Context, source string) float64 {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source)
	out, err := cmd.Output()
	if err != nil {
		e.logger.DebugContext(ctx, "video duration unavailable",
			"source", source,
			"error", err)
		return 0
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		e.logger.DebugContext(ctx, "video duration unparsable",
			"source", source,
			"output", tail(string(out), 80))
		return 0
	}
	return duration
}

// parseOutTime extracts the elapsed output time from one line of ffmpeg's
// progress stream. Despite the key name the value is in microseconds.
func parseOutTime(line string) (int64, bool) {
	value, found := strings.CutPrefix(line, "out_time_ms=")
	if !found {
		return 0, false
	}
	micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return micros, true
}

// extractProgress scales elapsed microseconds against the duration in
// seconds, capped at 1.
func extractProgress(micros int64, duration float64) float64 {
	p := float64(micros) / (duration * 1e6)
	if p > 1 {
		return 1
	}
	return p
}

// clearFrames removes stale JPEG frames so a re-extraction cannot mix old
// and new numbering.
func clearFrames(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return fmt.Errorf("list stale frames: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale frame: %w", err)
		}
	}
	return nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
