// Package video provides the source video library, ffmpeg frame
// extraction, and dataset packaging for completed labeling runs.
package video

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrVideoNotFound is returned when a named video has no file in the
// library directory under any known extension.
var ErrVideoNotFound = errors.New("video not found")

// videoExtensions lists the recognized source containers, in resolution
// order.
var videoExtensions = []string{".mp4", ".MP4", ".avi", ".mov"}

// Library lists and resolves source videos kept in a single directory.
// Videos are addressed by stem; the extension is discovered on resolve.
type Library struct {
	dir string
}

// NewLibrary creates a library over dir. The directory does not have to
// exist yet; a missing directory simply lists no videos.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// List returns the sorted stems of every video in the library. A missing
// library directory yields an empty list, not an error.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read video dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range videoExtensions {
			if ext == known {
				names = append(names, strings.TrimSuffix(entry.Name(), ext))
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Resolve returns the full path of the named video, trying each known
// extension in order.
func (l *Library) Resolve(name string) (string, error) {
	for _, ext := range videoExtensions {
		path := filepath.Join(l.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVideoNotFound, name)
}
