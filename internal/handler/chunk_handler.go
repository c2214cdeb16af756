package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// ChunkHandler serves CAS object introspection.
type ChunkHandler struct {
	chunks cas.Store
	logger zerolog.Logger
}

// NewChunkHandler creates a new chunk handler.
func NewChunkHandler(chunks cas.Store, logger zerolog.Logger) *ChunkHandler {
	return &ChunkHandler{
		chunks: chunks,
		logger: logger.With().Str("handler", "chunk").Logger(),
	}
}

// List handles GET /v1/objects.
func (h *ChunkHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.chunks.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// Info handles GET /v1/objects/{digest}. The fingerprint algorithm of
// the object is recorded in its own metadata; the digest alone
// addresses it.
func (h *ChunkHandler) Info(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	if !domain.ValidDigest(digest) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "malformed digest"})
		return
	}

	meta, err := h.chunks.Info(r.Context(), domain.Fingerprint{
		Algorithm: domain.AlgorithmSHA256,
		Digest:    digest,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": digest, "meta": meta})
}
