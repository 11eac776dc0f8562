package handlers

import (
	"net/http"

	"github.com/watzon/clipcast/internal/posts"
	"github.com/watzon/clipcast/internal/requestctx"
)

type PostHandlers struct {
	store *posts.Store
}

func NewPostHandlers(store *posts.Store) *PostHandlers {
	return &PostHandlers{store: store}
}

// List handles GET /api/posts.
func (h *PostHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset, err := page(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	status := posts.Status(q.Get("status"))
	switch status {
	case "", posts.StatusPending, posts.StatusPosted, posts.StatusFailed:
	default:
		BadRequest(w, "status must be one of pending, posted, failed")
		return
	}

	list, err := h.store.List(r.Context(), posts.ListFilter{
		ScheduleID: q.Get("schedule_id"),
		CycleID:    q.Get("cycle_id"),
		AccountID:  q.Get("account_id"),
		Status:     status,
		Sort:       q.Get("sort"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Failed to list posts")
		InternalError(w, "Failed to list posts")
		return
	}
	if list == nil {
		list = []*posts.Post{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"posts": list,
		"count": len(list),
	})
}
