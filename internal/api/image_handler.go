package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/api/shared"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
)

// ImageHandler serves source images and rendered previews to the
// dashboard. Requests are resolved against a fixed set of root
// directories; nothing outside them is ever served.
type ImageHandler struct {
	roots  []string
	logger *slog.Logger
}

// NewImageHandler creates a new ImageHandler serving files under the given
// roots. Empty root entries are ignored.
func NewImageHandler(roots []string, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ImageHandler")
	}

	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(root))
	}

	return &ImageHandler{
		roots:  cleaned,
		logger: logger.With(slog.String("component", "image_handler")),
	}
}

// GetImage handles GET /api/images/* requests.
// The wildcard is a path relative to one of the configured roots; the
// first root containing the file wins. Only jpg, jpeg and png files are
// served.
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	raw := chi.URLParam(r, "*")
	rel, err := url.PathUnescape(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid image path")
		return
	}

	if !allowedImageExt(rel) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Image not found")
		return
	}

	full, ok := h.resolve(rel)
	if !ok {
		log.Debug("image not found", slog.String("path", rel))
		shared.RespondWithError(w, r, http.StatusNotFound, "Image not found")
		return
	}

	http.ServeFile(w, r, full)
}

// resolve maps a relative request path to a file under one of the roots.
// Absolute paths and any path that would escape a root are rejected.
func (h *ImageHandler) resolve(rel string) (string, bool) {
	rel = filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	for _, root := range h.roots {
		candidate := filepath.Join(root, rel)
		// Join cleans the result; a candidate outside root means the
		// request tried to escape.
		if !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// allowedImageExt reports whether the path names a servable image type.
func allowedImageExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
