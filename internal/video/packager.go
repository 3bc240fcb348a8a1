package video

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/annotation"
)

// packageSteps is the number of progress steps in a packaging run.
const packageSteps = 5

// Packager assembles a completed run into a portable dataset directory:
// the source video, extracted frames, annotation records, rendered
// previews, a human-readable summary, a machine-readable manifest, and a
// zip of the whole tree.
type Packager struct {
	logger     *slog.Logger
	outputBase string
}

// NewPackager creates a packager writing datasets under outputBase.
func NewPackager(logger *slog.Logger, outputBase string) (*Packager, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if outputBase == "" {
		return nil, errors.New("output base cannot be empty")
	}
	return &Packager{logger: logger, outputBase: outputBase}, nil
}

// PackageInput describes one dataset to assemble.
type PackageInput struct {
	// Name is the dataset name; the output directory is <Name>_dataset.
	Name string

	// VideoPath is the source video to include. Optional.
	VideoPath string

	// FramesDir holds the extracted or supplied frames.
	FramesDir string

	// AnnotationsDir holds the per-frame annotation records.
	AnnotationsDir string

	// VisualizedDir holds rendered previews. Optional.
	VisualizedDir string

	// FPS is the sample rate recorded in the summary.
	FPS int

	// UseRefine records whether sign refinement was active.
	UseRefine bool

	// OnProgress receives values in [0, 1] at step boundaries. Optional.
	OnProgress func(float64)
}

// DatasetStats summarizes the annotations included in a dataset.
type DatasetStats struct {
	TotalFrames     int
	AnnotatedFrames int
	TotalObjects    int
	Categories      map[string]int
	Labels          map[string]int
}

// datasetManifest is the stats.json document written into each dataset.
type datasetManifest struct {
	VideoName       string         `json:"video_name,omitempty"`
	OutputName      string         `json:"output_name"`
	TotalFrames     int            `json:"total_frames"`
	AnnotatedFrames int            `json:"annotated_frames"`
	TotalObjects    int            `json:"total_objects"`
	Categories      map[string]int `json:"categories"`
	FPS             int            `json:"fps"`
	UseRefine       bool           `json:"use_refine"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Create assembles the dataset and returns its directory. Packaging runs
// in five steps: video, frames, annotations, previews, then summary plus
// archive, with progress reported after each.
func (p *Packager) Create(ctx context.Context, in PackageInput) (string, error) {
	if in.Name == "" {
		return "", errors.New("dataset name cannot be empty")
	}

	datasetDir := filepath.Join(p.outputBase, in.Name+"_dataset")
	for _, sub := range []string{"video", "frames", "annotations", "visualized"} {
		if err := os.MkdirAll(filepath.Join(datasetDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create dataset dir: %w", err)
		}
	}

	step := 0
	advance := func() {
		step++
		if in.OnProgress != nil {
			in.OnProgress(float64(step) / packageSteps)
		}
	}

	if in.VideoPath != "" {
		if err := copyFile(in.VideoPath, filepath.Join(datasetDir, "video", filepath.Base(in.VideoPath))); err != nil {
			return "", fmt.Errorf("copy video: %w", err)
		}
	}
	advance()

	frames, err := copyGlob(in.FramesDir, "*.jpg", filepath.Join(datasetDir, "frames"))
	if err != nil {
		return "", fmt.Errorf("copy frames: %w", err)
	}
	advance()

	if _, err := copyGlob(in.AnnotationsDir, "*.json", filepath.Join(datasetDir, "annotations")); err != nil {
		return "", fmt.Errorf("copy annotations: %w", err)
	}
	advance()

	if in.VisualizedDir != "" {
		if _, err := copyGlob(in.VisualizedDir, "*.jpg", filepath.Join(datasetDir, "visualized")); err != nil {
			return "", fmt.Errorf("copy previews: %w", err)
		}
	}
	advance()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("packaging interrupted: %w", err)
	}

	stats := p.scanAnnotations(in.AnnotationsDir, frames)

	summary := summaryMarkdown(in.Name, in.FPS, in.UseRefine, stats)
	if err := os.WriteFile(filepath.Join(datasetDir, "SUMMARY.md"), []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}

	manifest := datasetManifest{
		VideoName:       videoStem(in.VideoPath),
		OutputName:      in.Name,
		TotalFrames:     stats.TotalFrames,
		AnnotatedFrames: stats.AnnotatedFrames,
		TotalObjects:    stats.TotalObjects,
		Categories:      stats.Categories,
		FPS:             in.FPS,
		UseRefine:       in.UseRefine,
		CreatedAt:       time.Now().UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "stats.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	zipPath := filepath.Join(p.outputBase, in.Name+"_dataset.zip")
	if err := zipDir(zipPath, datasetDir, in.Name+"_dataset"); err != nil {
		return "", fmt.Errorf("archive dataset: %w", err)
	}
	advance()

	p.logger.InfoContext(ctx, "dataset packaged",
		"name", in.Name,
		"dir", datasetDir,
		"frames", stats.TotalFrames,
		"objects", stats.TotalObjects)
	return datasetDir, nil
}

// scanAnnotations tallies the annotation records. Unreadable records are
// skipped so one corrupt file cannot sink the packaging step.
func (p *Packager) scanAnnotations(dir string, frameCount int) DatasetStats {
	stats := DatasetStats{
		TotalFrames: frameCount,
		Categories:  make(map[string]int),
		Labels:      make(map[string]int),
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return stats
	}

	for _, path := range paths {
		rec, err := annotation.Load(path)
		if err != nil {
			p.logger.Debug("skipping unreadable annotation", "path", path, "error", err)
			continue
		}
		dets := rec.Detections()
		if len(dets) > 0 {
			stats.AnnotatedFrames++
		}
		for _, det := range dets {
			stats.TotalObjects++
			stats.Categories[det.Category]++
			stats.Labels[det.Label]++
		}
	}
	return stats
}

// summaryMarkdown renders the SUMMARY.md document.
func summaryMarkdown(name string, fps int, useRefine bool, stats DatasetStats) string {
	refinement := "disabled"
	if useRefine {
		refinement = "enabled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Annotation Summary - %s\n\n", name)
	fmt.Fprintf(&b, "**Generated**: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Sample rate**: %d FPS\n", fps)
	fmt.Fprintf(&b, "**Sign refinement**: %s\n\n", refinement)

	b.WriteString("## Overview\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Total frames | %d |\n", stats.TotalFrames)
	fmt.Fprintf(&b, "| Annotated frames | %d |\n", stats.AnnotatedFrames)
	fmt.Fprintf(&b, "| Detected objects | %d |\n\n", stats.TotalObjects)

	b.WriteString("## Category distribution\n\n")
	b.WriteString("| Category | Count | Share |\n")
	b.WriteString("|----------|-------|-------|\n")
	total := stats.TotalObjects
	if total == 0 {
		total = 1
	}
	for _, cat := range sortedByCount(stats.Categories) {
		count := stats.Categories[cat]
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", cat, count, float64(count)/float64(total)*100)
	}

	b.WriteString("\n---\n")
	b.WriteString("*Generated by autolabel*\n")
	return b.String()
}

// sortedByCount orders keys by descending count, ties by name.
func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func videoStem(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// copyGlob copies every file in srcDir matching pattern into destDir and
// returns how many were copied. A missing source directory copies nothing.
func copyGlob(srcDir, pattern, destDir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(srcDir, pattern))
	if err != nil {
		return 0, err
	}
	for _, src := range paths {
		if err := copyFile(src, filepath.Join(destDir, filepath.Base(src))); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// zipDir archives rootDir into zipPath with every entry nested under
// rootName, so the archive unpacks into a single directory.
func zipDir(zipPath, rootDir, rootName string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	w := zip.NewWriter(f)

	walkErr := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(rootName + "/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		_ = src.Close()
		return err
	})
	if walkErr != nil {
		_ = w.Close()
		_ = f.Close()
		return walkErr
	}

	if err := w.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
