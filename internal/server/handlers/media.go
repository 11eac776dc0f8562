package handlers

import (
	"errors"
	"net/http"

	"github.com/watzon/clipcast/internal/media"
	"github.com/watzon/clipcast/internal/requestctx"
)

// maxUploadMemory is how much of a multipart upload is buffered in memory.
const maxUploadMemory = 32 << 20

type MediaHandlers struct {
	library *media.Library
}

func NewMediaHandlers(library *media.Library) *MediaHandlers {
	return &MediaHandlers{library: library}
}

// Upload handles POST /api/media (multipart: file, owner_id, caption).
func (h *MediaHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		BadRequest(w, "Invalid multipart form: "+err.Error())
		return
	}

	ownerID := r.FormValue("owner_id")
	if ownerID == "" {
		BadRequest(w, "owner_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	m, err := h.library.Upload(r.Context(), header.Filename, file, header.Size, media.Origin{
		OwnerID: ownerID,
		Caption: r.FormValue("caption"),
	})
	if err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Str("file_name", header.Filename).Msg("Failed to store upload")
		InternalError(w, "Failed to store media")
		return
	}

	JSON(w, http.StatusCreated, m)
}

// Get handles GET /api/media/{id}.
func (h *MediaHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m, err := h.library.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			NotFound(w, "Media not found")
			return
		}
		requestctx.Logger(r.Context()).Error().Err(err).Str("media_id", id).Msg("Failed to get media")
		InternalError(w, "Failed to get media")
		return
	}

	JSON(w, http.StatusOK, m)
}
