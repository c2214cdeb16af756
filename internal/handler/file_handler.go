package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/domain"
	"github.com/prn-tf/cascade-store/internal/service"
)

// FileHandler serves file and version operations.
type FileHandler struct {
	files  service.FileService
	logger zerolog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(files service.FileService, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		files:  files,
		logger: logger.With().Str("handler", "file").Logger(),
	}
}

// Names handles GET /v1/files.
func (h *FileHandler) Names(w http.ResponseWriter, r *http.Request) {
	names, err := h.files.Names(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

// Versions handles GET /v1/files/{name}/versions.
func (h *FileHandler) Versions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	versions, err := h.files.Versions(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "versions": versions})
}

// HeadVersion handles GET /v1/files/{name}/versions/head.
func (h *FileHandler) HeadVersion(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	head, err := h.files.HeadVersion(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}

// Read handles GET /v1/files/{name}. The optional version, offset and
// length query parameters select a version and byte range; with no
// range the whole file streams back.
func (h *FileHandler) Read(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := r.URL.Query().Get("version")

	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	size, err := h.files.Size(r.Context(), name, version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	length, err := queryUint(r, "length", size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := h.files.Read(r.Context(), name, version, offset, length)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// RemoveVersion handles DELETE /v1/files/{name}/versions/{version}.
func (h *FileHandler) RemoveVersion(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	if err := h.files.RemoveVersion(r.Context(), name, version); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveAllVersions handles DELETE /v1/files/{name}.
func (h *FileHandler) RemoveAllVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.files.RemoveAllVersions(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiError is the JSON error body.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNameNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrNoVersions),
		errors.Is(err, domain.ErrObjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

// queryUint parses an optional unsigned query parameter.
func queryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Join(errBadRequest, err)
	}
	return v, nil
}
