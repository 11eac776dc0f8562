package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/watzon/clipcast/internal/requestctx"
	"github.com/watzon/clipcast/internal/scheduler"
	"github.com/watzon/clipcast/internal/schedules"
)

// ScheduleHandlers handles schedule-related endpoints. Every write keeps the
// live trigger set in step with the stored row.
type ScheduleHandlers struct {
	store     *schedules.Store
	scheduler *scheduler.Scheduler
	state     *scheduler.StateStore
}

// NewScheduleHandlers creates new schedule handlers. state may be nil.
func NewScheduleHandlers(store *schedules.Store, sched *scheduler.Scheduler, state *scheduler.StateStore) *ScheduleHandlers {
	return &ScheduleHandlers{
		store:     store,
		scheduler: sched,
		state:     state,
	}
}

// CreateScheduleRequest is the request body for creating a schedule.
type CreateScheduleRequest struct {
	OwnerID    string               `json:"owner_id"`
	Name       string               `json:"name"`
	Recurrence schedules.Recurrence `json:"recurrence"`
	AIPrompt   string               `json:"ai_prompt"`
	MediaID    string               `json:"media_id"`
	AccountIDs []string             `json:"account_ids"`
	Timezone   string               `json:"timezone"`
	Active     *bool                `json:"active,omitempty"`
}

// UpdateScheduleRequest is the request body for updating a schedule.
type UpdateScheduleRequest struct {
	Name       *string               `json:"name,omitempty"`
	Recurrence *schedules.Recurrence `json:"recurrence,omitempty"`
	AIPrompt   *string               `json:"ai_prompt,omitempty"`
	MediaID    *string               `json:"media_id,omitempty"`
	AccountIDs []string              `json:"account_ids,omitempty"`
	Timezone   *string               `json:"timezone,omitempty"`
	Active     *bool                 `json:"active,omitempty"`
}

// ScheduleView is a schedule plus its trigger status.
type ScheduleView struct {
	*schedules.Schedule
	Registered bool                     `json:"registered"`
	NextFire   *time.Time               `json:"next_fire,omitempty"`
	State      *scheduler.ScheduleState `json:"state,omitempty"`
}

func (h *ScheduleHandlers) view(s *schedules.Schedule) ScheduleView {
	v := ScheduleView{Schedule: s, Registered: h.scheduler.Registered(s.ID)}
	if v.Registered {
		if next, err := h.scheduler.NextFire(s, time.Now()); err == nil {
			v.NextFire = &next
		}
	}
	return v
}

// List handles GET /api/schedules.
func (h *ScheduleHandlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset, err := page(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := schedules.ListFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   limit,
		Offset:  offset,
	}
	if v := r.URL.Query().Get("active"); v != "" {
		filter.ActiveOnly, err = strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "active must be a boolean")
			return
		}
	}

	list, err := h.store.List(ctx, filter)
	if err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Failed to list schedules")
		InternalError(w, "Failed to list schedules")
		return
	}

	views := make([]ScheduleView, 0, len(list))
	for _, s := range list {
		views = append(views, h.view(s))
	}

	JSON(w, http.StatusOK, map[string]any{
		"schedules": views,
		"count":     len(views),
	})
}

// Get handles GET /api/schedules/{id}.
func (h *ScheduleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sched, err := h.store.Get(ctx, id)
	if err != nil {
		h.storeError(w, r, err, id, "Failed to get schedule")
		return
	}

	v := h.view(sched)
	if h.state != nil {
		state, err := h.state.Get(ctx, id)
		if err != nil {
			requestctx.Logger(r.Context()).Warn().Err(err).Str("schedule_id", id).Msg("Failed to load scheduler state")
		}
		v.State = state
	}

	JSON(w, http.StatusOK, v)
}

// Create handles POST /api/schedules.
func (h *ScheduleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	sched := &schedules.Schedule{
		OwnerID:    req.OwnerID,
		Name:       req.Name,
		Recurrence: req.Recurrence,
		AIPrompt:   req.AIPrompt,
		MediaID:    req.MediaID,
		AccountIDs: req.AccountIDs,
		Timezone:   req.Timezone,
		Active:     req.Active == nil || *req.Active,
	}
	if !h.checkSchedule(w, sched) {
		return
	}

	if err := h.store.Create(ctx, sched); err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Failed to create schedule")
		InternalError(w, "Failed to create schedule")
		return
	}

	if sched.Active {
		if err := h.scheduler.Register(sched); err != nil {
			requestctx.Logger(r.Context()).Error().Err(err).Str("schedule_id", sched.ID).Msg("Failed to register schedule")
		}
	}

	JSON(w, http.StatusCreated, h.view(sched))
}

// Update handles PATCH /api/schedules/{id}.
func (h *ScheduleHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sched, err := h.store.Get(ctx, id)
	if err != nil {
		h.storeError(w, r, err, id, "Failed to get schedule")
		return
	}

	var req UpdateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if req.Name != nil {
		sched.Name = *req.Name
	}
	if req.Recurrence != nil {
		sched.Recurrence = *req.Recurrence
	}
	if req.AIPrompt != nil {
		sched.AIPrompt = *req.AIPrompt
	}
	if req.MediaID != nil {
		sched.MediaID = *req.MediaID
	}
	if req.AccountIDs != nil {
		sched.AccountIDs = req.AccountIDs
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
	}
	if req.Active != nil {
		sched.Active = *req.Active
	}
	if !h.checkSchedule(w, sched) {
		return
	}

	if err := h.store.Update(ctx, sched); err != nil {
		h.storeError(w, r, err, id, "Failed to update schedule")
		return
	}

	if err := h.scheduler.Reregister(sched); err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Str("schedule_id", id).Msg("Failed to reregister schedule")
	}

	JSON(w, http.StatusOK, h.view(sched))
}

// Delete handles DELETE /api/schedules/{id}. The trigger goes first so no
// fire can start against a row that is about to disappear. If the row
// survives a failed delete, its trigger is put back.
func (h *ScheduleHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	sched, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, schedules.ErrNotFound) {
			h.scheduler.Deregister(id)
		}
		h.storeError(w, r, err, id, "Failed to get schedule")
		return
	}

	h.scheduler.Deregister(id)

	if err := h.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, schedules.ErrNotFound) && sched.Active {
			if rerr := h.scheduler.Register(sched); rerr != nil {
				requestctx.Logger(ctx).Error().Err(rerr).Str("schedule_id", id).Msg("Failed to restore trigger")
			}
		}
		h.storeError(w, r, err, id, "Failed to delete schedule")
		return
	}

	if h.state != nil {
		if err := h.state.Delete(ctx, id); err != nil {
			requestctx.Logger(r.Context()).Warn().Err(err).Str("schedule_id", id).Msg("Failed to delete scheduler state")
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Schedule deleted successfully",
	})
}

// Run handles POST /api/schedules/{id}/run.
func (h *ScheduleHandlers) Run(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.scheduler.Trigger(id)
	switch {
	case err == nil:
		JSON(w, http.StatusAccepted, map[string]any{
			"success":     true,
			"message":     "Cycle started",
			"schedule_id": id,
		})
	case errors.Is(err, scheduler.ErrNotRegistered):
		NotFound(w, "Schedule is not active")
	case errors.Is(err, scheduler.ErrCycleRunning):
		Conflict(w, "CYCLE_RUNNING", "A cycle for this schedule is already running")
	case errors.Is(err, scheduler.ErrStopped):
		Error(w, http.StatusServiceUnavailable, "SCHEDULER_STOPPED", "Scheduler is shutting down")
	default:
		requestctx.Logger(r.Context()).Error().Err(err).Str("schedule_id", id).Msg("Failed to trigger schedule")
		InternalError(w, "Failed to trigger schedule")
	}
}

// checkSchedule validates fields, content and recurrence, writing a 400 on failure.
func (h *ScheduleHandlers) checkSchedule(w http.ResponseWriter, sched *schedules.Schedule) bool {
	if err := sched.Validate(); err != nil {
		validationFailed(w, err)
		return false
	}
	if sched.AIPrompt == "" && sched.MediaID == "" {
		BadRequest(w, "Either ai_prompt or media_id is required")
		return false
	}
	if _, err := h.scheduler.NextFire(sched, time.Now()); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_RECURRENCE", err.Error())
		return false
	}
	return true
}

func (h *ScheduleHandlers) storeError(w http.ResponseWriter, r *http.Request, err error, id, msg string) {
	if errors.Is(err, schedules.ErrNotFound) {
		NotFound(w, "Schedule not found")
		return
	}
	requestctx.Logger(r.Context()).Error().Err(err).Str("schedule_id", id).Msg(msg)
	InternalError(w, msg)
}
