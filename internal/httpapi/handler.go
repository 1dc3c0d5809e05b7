package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lineup/internal/analytics"
	"lineup/internal/models"
	"lineup/internal/queue"
	"lineup/internal/store"
)

const defaultAnalyticsDays = 30

// QueueService is the lifecycle surface the handler drives.
type QueueService interface {
	Join(ctx context.Context, placeID, queueName, userName string) (models.QueueEntry, bool, error)
	Serve(ctx context.Context, entryID string) (models.QueueEntry, error)
	AdminRemove(ctx context.Context, entryID string) (models.QueueEntry, error)
	SelfLeave(ctx context.Context, entryID, verificationCode string) (models.QueueEntry, error)
	VerifyPresence(ctx context.Context, placeID, verificationCode string) (models.QueueEntry, error)
	Acknowledge(ctx context.Context, entryID string) (models.QueueEntry, error)
	CreateNamedQueue(ctx context.Context, placeID, queueName string) error
	DeleteNamedQueue(ctx context.Context, placeID, queueName string) ([]string, int64, error)
	ListQueueNames(ctx context.Context, placeID string) ([]string, error)
	ListWaiting(ctx context.Context, placeID, queueName string) ([]models.QueueEntry, error)
	StatusOf(ctx context.Context, entryID string) (queue.EntryStatus, error)
	DeletePlace(ctx context.Context, placeID string) (int64, error)
}

// HistoryStore feeds the analytics and export endpoints.
type HistoryStore interface {
	ListHistory(ctx context.Context, placeID string, since time.Time) ([]models.QueueEntry, error)
}

type Handler struct {
	service  QueueService
	history  HistoryStore
	verifier *Verifier
	loc      *time.Location
}

type Options struct {
	// Location used for analytics hour/date bucketing; time.Local if nil.
	Location *time.Location
}

func NewHandler(service QueueService, history HistoryStore, verifier *Verifier, opts Options) *Handler {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{service: service, history: history, verifier: verifier, loc: loc}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/places/", h.handlePlaces)
	mux.HandleFunc("/api/entries/", h.handleEntries)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handlePlaces(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/places/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	placeID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDeletePlace(w, r, placeID)
	case len(parts) == 3 && parts[1] == "queue" && parts[2] == "join":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleJoin(w, r, placeID)
	case len(parts) == 2 && parts[1] == "queue":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListWaiting(w, r, placeID)
	case len(parts) == 2 && parts[1] == "queues":
		switch r.Method {
		case http.MethodGet:
			h.handleListQueueNames(w, r, placeID)
		case http.MethodPost:
			h.handleCreateQueue(w, r, placeID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[1] == "queues":
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDeleteQueue(w, r, placeID, parts[2])
	case len(parts) == 2 && parts[1] == "verify":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleVerify(w, r, placeID)
	case len(parts) == 2 && parts[1] == "analytics":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAnalytics(w, r, placeID)
	case len(parts) == 3 && parts[1] == "analytics" && parts[2] == "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, placeID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entryID := parts[0]

	switch parts[1] {
	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleStatus(w, r, entryID)
	case "serve":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleServe(w, r, entryID)
	case "remove":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRemove(w, r, entryID)
	case "leave":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLeave(w, r, entryID)
	case "acknowledge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAcknowledge(w, r, entryID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type joinRequest struct {
	UserName  string `json:"userName"`
	QueueName string `json:"queueName"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, placeID string) {
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	req.QueueName = strings.TrimSpace(req.QueueName)
	if req.UserName == "" {
		writeError(w, http.StatusBadRequest, "userName is required")
		return
	}

	entry, created, err := h.service.Join(r.Context(), placeID, req.QueueName, req.UserName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !created {
		// Duplicate join: surface the existing ticket so the caller can
		// resume its session instead of losing its place.
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"message":          "already waiting in this queue",
			"_id":              entry.ID,
			"verificationCode": entry.VerificationCode,
		})
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListWaiting(w http.ResponseWriter, r *http.Request, placeID string) {
	queueName := strings.TrimSpace(r.URL.Query().Get("queueName"))
	entries, err := h.service.ListWaiting(r.Context(), placeID, queueName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleListQueueNames(w http.ResponseWriter, r *http.Request, placeID string) {
	names, err := h.service.ListQueueNames(r.Context(), placeID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

type queueNameRequest struct {
	QueueName string `json:"queueName"`
}

func (h *Handler) handleCreateQueue(w http.ResponseWriter, r *http.Request, placeID string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	var req queueNameRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.QueueName = strings.TrimSpace(req.QueueName)
	if req.QueueName == "" {
		writeError(w, http.StatusBadRequest, "queueName is required")
		return
	}
	if req.QueueName == models.SystemUserName || req.QueueName == models.SystemCode {
		writeError(w, http.StatusBadRequest, "queueName is reserved")
		return
	}

	if err := h.service.CreateNamedQueue(r.Context(), placeID, req.QueueName); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":   "queue created",
		"queueName": req.QueueName,
	})
}

func (h *Handler) handleDeleteQueue(w http.ResponseWriter, r *http.Request, placeID, queueName string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	names, deleted, err := h.service.DeleteNamedQueue(r.Context(), placeID, queueName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "queue deleted",
		"queueNames":   names,
		"deletedCount": deleted,
	})
}

type verifyRequest struct {
	VerificationCode string `json:"verificationCode"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, placeID string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	var req verifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.VerificationCode = strings.TrimSpace(req.VerificationCode)
	if req.VerificationCode == "" {
		writeError(w, http.StatusBadRequest, "verificationCode is required")
		return
	}

	entry, err := h.service.VerifyPresence(r.Context(), placeID, req.VerificationCode)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyVerified) {
			// Not swallowed: the caller still gets the entry it asked about.
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"message": "entry already verified",
				"entry":   entry,
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeletePlace(w http.ResponseWriter, r *http.Request, placeID string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	deleted, err := h.service.DeletePlace(r.Context(), placeID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "place entries deleted",
		"deletedCount": deleted,
	})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request, placeID string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	entries, ok := h.loadHistory(w, r, placeID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.BuildReport(entries, h.loc))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, placeID string) {
	if !h.requireStaff(w, r, placeID) {
		return
	}
	entries, ok := h.loadHistory(w, r, placeID)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=queue-history.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(analytics.ExportCSV(entries)))
}

func (h *Handler) loadHistory(w http.ResponseWriter, r *http.Request, placeID string) ([]models.QueueEntry, bool) {
	days := defaultAnalyticsDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return nil, false
		}
		days = parsed
	}
	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	entries, err := h.history.ListHistory(r.Context(), placeID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return entries, true
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, entryID string) {
	status, err := h.service.StatusOf(r.Context(), entryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request, entryID string) {
	if !h.requireStaff(w, r, "") {
		return
	}
	entry, err := h.service.Serve(r.Context(), entryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request, entryID string) {
	if !h.requireStaff(w, r, "") {
		return
	}
	entry, err := h.service.AdminRemove(r.Context(), entryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type leaveRequest struct {
	VerificationCode string `json:"verificationCode"`
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request, entryID string) {
	var req leaveRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	entry, err := h.service.SelfLeave(r.Context(), entryID, strings.TrimSpace(req.VerificationCode))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, err := h.service.Acknowledge(r.Context(), entryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status, message := mapError(err)
	writeError(w, status, message)
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry not found"
	case errors.Is(err, store.ErrQueueExists):
		return http.StatusConflict, "queue name already exists"
	case errors.Is(err, store.ErrCodeMismatch):
		return http.StatusForbidden, "verification code does not match"
	case errors.Is(err, store.ErrAlreadyVerified):
		return http.StatusBadRequest, "entry already verified"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusBadRequest, "entry state does not allow this action"
	case errors.Is(err, queue.ErrReservedUserName):
		return http.StatusBadRequest, "user name is reserved"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
