package handlers

import (
	"errors"
	"net/http"

	"github.com/gobwas/glob"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/requestctx"
	"github.com/watzon/clipcast/internal/sessions"
)

// AccountHandlers manages platform accounts together with their browser profiles.
type AccountHandlers struct {
	store    *accounts.Store
	sessions *sessions.Store
}

func NewAccountHandlers(store *accounts.Store, sess *sessions.Store) *AccountHandlers {
	return &AccountHandlers{store: store, sessions: sess}
}

type CreateAccountRequest struct {
	OwnerID     string            `json:"owner_id"`
	Platform    accounts.Platform `json:"platform"`
	DisplayName string            `json:"display_name"`
}

type UpdateAccountRequest struct {
	Active *bool `json:"active,omitempty"`
}

// List handles GET /api/accounts. ?platform= accepts a glob such as "insta*".
func (h *AccountHandlers) List(w http.ResponseWriter, r *http.Request) {
	var match glob.Glob
	if pattern := r.URL.Query().Get("platform"); pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			BadRequest(w, "Invalid platform pattern: "+err.Error())
			return
		}
		match = g
	}

	list, err := h.store.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Failed to list accounts")
		InternalError(w, "Failed to list accounts")
		return
	}

	filtered := make([]*accounts.Account, 0, len(list))
	for _, acc := range list {
		if match == nil || match.Match(string(acc.Platform)) {
			filtered = append(filtered, acc)
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"accounts": filtered,
		"count":    len(filtered),
	})
}

// Create handles POST /api/accounts. The browser profile is created before
// the row so a stored account always has somewhere to keep its login.
func (h *AccountHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	acc := &accounts.Account{
		OwnerID:     req.OwnerID,
		Platform:    req.Platform,
		DisplayName: req.DisplayName,
		Active:      true,
	}
	if err := acc.Validate(); err != nil {
		validationFailed(w, err)
		return
	}
	acc.ID = accounts.NewID(acc.OwnerID, acc.Platform)

	path, err := h.sessions.Create(acc.ID)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalidAccountID) {
			BadRequest(w, "owner_id produces an invalid profile name")
			return
		}
		requestctx.Logger(r.Context()).Error().Err(err).Str("account_id", acc.ID).Msg("Failed to create browser profile")
		InternalError(w, "Failed to create browser profile")
		return
	}
	acc.ProfilePath = path

	if err := h.store.Create(ctx, acc); err != nil {
		// An id collision means the profile belongs to the existing account.
		if database.IsUniqueError(err) {
			Conflict(w, "ACCOUNT_EXISTS", "An account with this id already exists")
			return
		}
		if delErr := h.sessions.Delete(acc.ID); delErr != nil {
			requestctx.Logger(r.Context()).Warn().Err(delErr).Str("account_id", acc.ID).Msg("Failed to remove orphaned profile")
		}
		requestctx.Logger(r.Context()).Error().Err(err).Str("account_id", acc.ID).Msg("Failed to create account")
		InternalError(w, "Failed to create account")
		return
	}

	requestctx.Logger(r.Context()).Info().
		Str("account_id", acc.ID).
		Str("platform", string(acc.Platform)).
		Msg("Account created")

	JSON(w, http.StatusCreated, acc)
}

// Update handles PATCH /api/accounts/{id}. Deactivating keeps the profile.
func (h *AccountHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.Active != nil {
		if err := h.store.SetActive(ctx, id, *req.Active); err != nil {
			h.storeError(w, r, err, id, "Failed to update account")
			return
		}
	}

	acc, err := h.store.Get(ctx, id)
	if err != nil {
		h.storeError(w, r, err, id, "Failed to get account")
		return
	}

	JSON(w, http.StatusOK, acc)
}

// Delete handles DELETE /api/accounts/{id}, removing the profile and the row.
func (h *AccountHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.store.Get(ctx, id); err != nil {
		h.storeError(w, r, err, id, "Failed to get account")
		return
	}

	if err := h.sessions.Delete(id); err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Str("account_id", id).Msg("Failed to delete browser profile")
		InternalError(w, "Failed to delete browser profile")
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		h.storeError(w, r, err, id, "Failed to delete account")
		return
	}

	requestctx.Logger(r.Context()).Info().Str("account_id", id).Msg("Account deleted")

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account deleted successfully",
	})
}

func (h *AccountHandlers) storeError(w http.ResponseWriter, r *http.Request, err error, id, msg string) {
	if errors.Is(err, accounts.ErrNotFound) {
		NotFound(w, "Account not found")
		return
	}
	requestctx.Logger(r.Context()).Error().Err(err).Str("account_id", id).Msg(msg)
	InternalError(w, msg)
}
