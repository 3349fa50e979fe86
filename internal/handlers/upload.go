package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// UploadHandler stores media files (diagnosis photos, part images) on local
// disk and returns their serving path.
type UploadHandler struct {
	dir string
}

// NewUploadHandler creates an upload handler writing into dir.
func NewUploadHandler(dir string) *UploadHandler {
	return &UploadHandler{dir: dir}
}

// Upload accepts a multipart file and responds with its URL.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "File field is required")
		return
	}
	defer file.Close()

	name := uuid.NewString() + sanitizeExt(header.Filename)
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	log.WithFields(log.Fields{"file": name, "kind": r.FormValue("kind")}).Debug("File stored")
	respondJSON(w, http.StatusOK, map[string]string{"url": "/uploads/" + name})
}

// sanitizeExt keeps only a plain extension from the client filename.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
