package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"remindme/internal/middleware"
	"remindme/internal/reminder"
	"remindme/internal/scheduler"
	"remindme/internal/storage"
	"remindme/internal/user"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	pendingLogLimit       = 50
	completionHistoryCap  = 100
	analyticsRecentWindow = 30 * 24 * time.Hour
)

// Handlers serves the reminder HTTP API. Reminder, completion, and streak
// routes are scoped to the caller identified by the X-User-ID header.
type Handlers struct {
	store    storage.Storage
	sched    *scheduler.Scheduler
	cache    *middleware.ResponseCache
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func New(store storage.Storage, sched *scheduler.Scheduler, cache *middleware.ResponseCache, log *zap.SugaredLogger) *Handlers {
	return &Handlers{
		store:    store,
		sched:    sched,
		cache:    cache,
		validate: validator.New(),
		log:      log,
	}
}

// Routes registers every handler on r.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/users", h.CreateUser).Methods("POST")
	r.HandleFunc("/users", h.ListUsers).Methods("GET")
	r.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	r.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")

	r.HandleFunc("/reminders", h.CreateReminder).Methods("POST")
	r.HandleFunc("/reminders", h.ListReminders).Methods("GET")
	r.HandleFunc("/reminders/{id}", h.GetReminder).Methods("GET")
	r.HandleFunc("/reminders/{id}", h.UpdateReminder).Methods("PATCH", "PUT")
	r.HandleFunc("/reminders/{id}", h.DeleteReminder).Methods("DELETE")

	r.HandleFunc("/completions/{logID}/complete", h.CompleteReminder).Methods("POST")
	r.HandleFunc("/completions/pending", h.ListPending).Methods("GET")
	r.HandleFunc("/completions/history/{reminderID}", h.CompletionHistory).Methods("GET")

	r.HandleFunc("/streaks", h.ListStreaks).Methods("GET")
	r.HandleFunc("/streaks/{reminderID}", h.GetStreak).Methods("GET")

	r.HandleFunc("/analytics/summary", h.AnalyticsSummary).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ownerID resolves the calling user from the X-User-ID header. An empty
// result means the caller was already answered with 401.
func (h *Handlers) ownerID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required")
	}
	return id
}

func (h *Handlers) invalidate(ownerID string) {
	if h.cache != nil {
		h.cache.Invalidate(ownerID)
	}
}

// --- Users ---

type createUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Timezone string `json:"timezone"`
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "invalid timezone")
			return
		}
	}

	u := user.New(uuid.NewString(), req.Name, req.Email, req.Timezone)
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		h.log.Errorw("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.log.Infow("user created", "user_id", u.ID, "email", u.Email)
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.notFoundOr500(w, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.log.Errorw("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.notFoundOr500(w, err, "failed to delete user")
		return
	}
	h.invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Reminders ---

type createReminderRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	TimeOfDay   string `json:"reminder_time" validate:"required"`
	Recurrence  string `json:"recurrence_type" validate:"required,oneof=daily weekly"`
	WeeklyDays  []int  `json:"weekly_days"`
	Active      *bool  `json:"is_active"`
}

func (h *Handlers) CreateReminder(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.GetUser(r.Context(), owner); err != nil {
		h.notFoundOr500(w, err, "failed to resolve owner")
		return
	}

	rem := reminder.New(uuid.NewString(), owner, req.Title, req.Description,
		req.TimeOfDay, req.Recurrence, req.WeeklyDays)
	if req.Active != nil {
		rem.Active = *req.Active
	}
	if err := rem.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateReminder(r.Context(), rem); err != nil {
		h.log.Errorw("failed to create reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.invalidate(owner)
	h.log.Infow("reminder created", "reminder_id", rem.ID, "owner_id", owner, "title", rem.Title)
	writeJSON(w, http.StatusCreated, rem)
}

func (h *Handlers) GetReminder(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	rem, err := h.store.GetReminder(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		h.notFoundOr500(w, err, "failed to get reminder")
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *Handlers) ListReminders(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	list, err := h.store.ListReminders(r.Context(), owner)
	if err != nil {
		h.log.Errorw("failed to list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	rem, err := h.store.GetReminder(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		h.notFoundOr500(w, err, "failed to get reminder")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	for k, v := range patch {
		switch k {
		case "title":
			if s, ok := v.(string); ok {
				rem.Title = s
			}
		case "description":
			if s, ok := v.(string); ok {
				rem.Description = s
			}
		case "reminder_time":
			if s, ok := v.(string); ok {
				rem.TimeOfDay = s
			}
		case "recurrence_type":
			if s, ok := v.(string); ok {
				rem.Recurrence = s
			}
		case "weekly_days":
			if days, ok := v.([]any); ok {
				rem.WeeklyDays = rem.WeeklyDays[:0]
				for _, d := range days {
					if n, ok := d.(float64); ok {
						rem.WeeklyDays = append(rem.WeeklyDays, int(n))
					}
				}
			}
		case "is_active":
			if b, ok := v.(bool); ok {
				rem.Active = b
			}
		}
	}
	if err := rem.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rem.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateReminder(r.Context(), rem); err != nil {
		h.log.Errorw("failed to update reminder", "reminder_id", rem.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.invalidate(owner)
	writeJSON(w, http.StatusOK, rem)
}

func (h *Handlers) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	if err := h.store.DeleteReminder(r.Context(), mux.Vars(r)["id"], owner); err != nil {
		h.notFoundOr500(w, err, "failed to delete reminder")
		return
	}
	h.invalidate(owner)
	w.WriteHeader(http.StatusNoContent)
}

// --- Completions ---

func (h *Handlers) CompleteReminder(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	c, err := h.sched.OnUserCompletion(r.Context(), mux.Vars(r)["logID"], owner)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "reminder log not found")
		return
	case errors.Is(err, scheduler.ErrAlreadyCompleted):
		writeError(w, http.StatusBadRequest, "already marked as completed")
		return
	case err != nil:
		h.log.Errorw("failed to complete reminder", "log_id", mux.Vars(r)["logID"], "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.invalidate(owner)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "reminder marked as completed",
		"completion": c,
	})
}

func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	pending, err := h.store.ListPendingLogs(r.Context(), owner, pendingLogLimit)
	if err != nil {
		h.log.Errorw("failed to list pending logs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handlers) CompletionHistory(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	list, err := h.store.ListCompletions(r.Context(), mux.Vars(r)["reminderID"], owner, completionHistoryCap)
	if err != nil {
		h.log.Errorw("failed to list completions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- Streaks ---

func (h *Handlers) ListStreaks(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	streaks, err := h.store.ListStreaks(r.Context(), owner)
	if err != nil {
		h.log.Errorw("failed to list streaks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, streaks)
}

func (h *Handlers) GetStreak(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	reminderID := mux.Vars(r)["reminderID"]
	if _, err := h.store.GetReminder(r.Context(), reminderID, owner); err != nil {
		h.notFoundOr500(w, err, "failed to resolve reminder")
		return
	}
	st, err := h.store.GetOrCreateStreak(r.Context(), owner, reminderID)
	if err != nil {
		h.log.Errorw("failed to get streak", "reminder_id", reminderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Analytics ---

type analyticsSummary struct {
	TotalActiveReminders int                      `json:"total_active_reminders"`
	Stats                reminder.CompletionStats `json:"stats"`
	TotalStreak          int                      `json:"total_streak"`
	TopStreak            *reminder.StreakSummary  `json:"top_streak,omitempty"`
}

func (h *Handlers) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	owner := h.ownerID(w, r)
	if owner == "" {
		return
	}
	ctx := r.Context()

	reminders, err := h.store.ListReminders(ctx, owner)
	if err != nil {
		h.log.Errorw("failed to list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	active := 0
	for _, rem := range reminders {
		if rem.Active {
			active++
		}
	}

	since := time.Now().UTC().Add(-analyticsRecentWindow)
	stats, err := h.store.AggregateCompletions(ctx, owner, since)
	if err != nil {
		h.log.Errorw("failed to aggregate completions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	streaks, err := h.store.ListStreaks(ctx, owner)
	if err != nil {
		h.log.Errorw("failed to list streaks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	summary := analyticsSummary{
		TotalActiveReminders: active,
		Stats:                stats,
	}
	for _, st := range streaks {
		summary.TotalStreak += st.CurrentStreak
	}
	if len(streaks) > 0 {
		summary.TopStreak = streaks[0]
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) notFoundOr500(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Errorw(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
