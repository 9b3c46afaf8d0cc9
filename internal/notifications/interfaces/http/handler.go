package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	"github.com/SergFTM/wealth-os-sub013/internal/engine"
	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// Handler provides notification inbox HTTP endpoints.
type Handler struct {
	engine *engine.Service
}

// NewHandler constructs a handler.
func NewHandler(eng *engine.Service) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("notifications handler: nil engine")
	}
	return &Handler{engine: eng}, nil
}

// ServeHTTP handles /api/v1/notifications and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/notifications":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case r.URL.Path == "/api/v1/notifications/scored":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleScored(w, r)
	case r.URL.Path == "/api/v1/notifications/anomalies":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAnomalies(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/notifications/"):
		h.handleAction(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := h.resolveUserID(r)
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	status := r.URL.Query().Get("status")
	list, err := h.engine.ListInbox(r.Context(), userID, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft engine.ManualDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	created, err := h.engine.CreateNotification(r.Context(), draft)
	if err != nil {
		respondNotificationError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (h *Handler) handleScored(w http.ResponseWriter, r *http.Request) {
	userID := h.resolveUserID(r)
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = auth.LocaleFromContext(r.Context())
	}
	list, err := h.engine.ScoreInbox(r.Context(), userID, locale)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	found, err := h.engine.Anomalies(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, found)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/notifications/")
	parts := strings.Split(path, "/")

	if len(parts) == 1 && r.Method == http.MethodGet {
		n, err := h.engine.GetNotification(r.Context(), parts[0])
		if err != nil {
			respondNotificationError(w, err)
			return
		}
		respondJSON(w, n)
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var (
		n   *notifications.Notification
		err error
	)
	switch parts[1] {
	case "read":
		n, err = h.engine.MarkRead(r.Context(), parts[0])
	case "dismiss":
		n, err = h.engine.Dismiss(r.Context(), parts[0])
	case "archive":
		n, err = h.engine.Archive(r.Context(), parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondNotificationError(w, err)
		return
	}
	respondJSON(w, n)
}

// resolveUserID prefers the explicit query parameter, falling back to
// the authenticated subject.
func (h *Handler) resolveUserID(r *http.Request) string {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		return userID
	}
	return auth.SubjectFromContext(r.Context())
}

func respondNotificationError(w http.ResponseWriter, err error) {
	if errors.Is(err, notifications.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if notifications.IsInvalidTransition(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func respondJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
