package annotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists annotation records under a single output directory, one
// JSON file per image stem. Writes go through a temp file and rename, so a
// record either exists completely or not at all; resumed runs rely on that
// to decide which items to skip.
type Store struct {
	dir string
}

// NewStore creates the output directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create annotation dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the record path for an image.
func (s *Store) PathFor(imagePath string) string {
	return filepath.Join(s.dir, Stem(imagePath)+".json")
}

// Exists reports whether a complete record is already present for the
// image.
func (s *Store) Exists(imagePath string) bool {
	_, err := os.Stat(s.PathFor(imagePath))
	return err == nil
}

// Write persists the record for an image atomically.
func (s *Store) Write(imagePath string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal annotation for %s: %w", imagePath, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+Stem(imagePath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp annotation file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write annotation for %s: %w", imagePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close annotation file for %s: %w", imagePath, err)
	}

	if err := os.Rename(tmp.Name(), s.PathFor(imagePath)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize annotation for %s: %w", imagePath, err)
	}
	return nil
}

// LoadFor reads the record previously written for an image.
func (s *Store) LoadFor(imagePath string) (Record, error) {
	return Load(s.PathFor(imagePath))
}

// FilterPending splits the item list into paths that still need processing
// and the count of items whose records already exist.
func (s *Store) FilterPending(paths []string) (pending []string, skipped int) {
	pending = make([]string, 0, len(paths))
	for _, p := range paths {
		if s.Exists(p) {
			skipped++
			continue
		}
		pending = append(pending, p)
	}
	return pending, skipped
}

// Load reads a record from an explicit path.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read annotation %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse annotation %s: %w", path, err)
	}
	return rec, nil
}
