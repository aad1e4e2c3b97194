package binary

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fmteixeira/mesh-ui/internal/auth"
	"github.com/fmteixeira/mesh-ui/internal/node"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// maxFormSize is the maximum size for ParseMultipartForm (10 MiB + 1 MiB overhead).
const maxFormSize = 11 << 20

// Handler serves binary uploads on the authenticated admin API.
type Handler struct {
	service *Service
}

// NewHandler creates a new binary upload Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the upload route.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/projects/{project}/nodes/{uuid}/binary/{field}", h.Upload)
}

// Upload handles POST /admin/api/projects/{project}/nodes/{uuid}/binary/{field}?lang=.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)

	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		server.Error(w, http.StatusBadRequest, "INVALID_UPLOAD",
			"failed to parse multipart form: file may be too large", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		server.Error(w, http.StatusBadRequest, "MISSING_FILE",
			"missing 'file' field in multipart form", nil)
		return
	}
	defer file.Close()

	target := Target{
		Project:  chi.URLParam(r, "project"),
		NodeUUID: chi.URLParam(r, "uuid"),
		Language: r.URL.Query().Get("lang"),
		Field:    chi.URLParam(r, "field"),
	}

	n, err := h.service.Upload(r.Context(), target, header.Header.Get("Content-Type"), file,
		auth.EditorIDFromContext(r.Context()))
	if err != nil {
		var ue *UploadError
		var verr *node.ValidationError
		var cerr *node.ConflictError
		switch {
		case errors.As(err, &ue):
			server.Error(w, http.StatusBadRequest, "UPLOAD_ERROR", ue.Message, nil)
		case errors.As(err, &verr):
			server.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", verr.Fields)
		case errors.As(err, &cerr):
			server.Error(w, http.StatusConflict, "CONFLICT", cerr.Error(), nil)
		case errors.Is(err, node.ErrNotFound):
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		default:
			server.InternalError(w, "binary upload failed", err)
		}
		return
	}

	server.JSON(w, http.StatusCreated, n)
}

// Files serves stored binaries on the public router.
type Files struct {
	storage *LocalStorage
}

// NewFiles creates a public file server over storage.
func NewFiles(storage *LocalStorage) *Files {
	return &Files{storage: storage}
}

// Mount registers the public download route.
func (f *Files) Mount(r chi.Router) {
	r.Get("/binaries/{variant}/{filename}", f.Serve)
}

// Serve handles GET /binaries/{variant}/{filename}.
func (f *Files) Serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	filePath := f.storage.Path(chi.URLParam(r, "variant"), filename)
	if filePath == "" {
		server.Error(w, http.StatusBadRequest, "INVALID_FILENAME", "invalid variant or filename", nil)
		return
	}

	mimeType := mimeFromExtension(filename)
	if mimeType == "" {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "binary not found", nil)
		return
	}

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "binary not found", nil)
			return
		}
		server.InternalError(w, "binary stat failed", err)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")

	// Non-images are downloaded rather than rendered inline.
	if !IsImageMIME(mimeType) {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(filename)))
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	http.ServeFile(w, r, filePath)
}

// sanitizeFilename removes characters that are problematic in
// Content-Disposition headers.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, `\`, "")
	if name == "" {
		name = "download"
	}
	return name
}
