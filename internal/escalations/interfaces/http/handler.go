package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	"github.com/SergFTM/wealth-os-sub013/internal/engine"
	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
)

// Handler provides escalation HTTP endpoints.
type Handler struct {
	engine *engine.Service
}

// NewHandler constructs a handler.
func NewHandler(eng *engine.Service) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("escalations handler: nil engine")
	}
	return &Handler{engine: eng}, nil
}

// ServeHTTP handles /api/v1/escalations and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/escalations":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/escalations/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	list, err := h.engine.ListEscalations(r.Context(), status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/escalations/")
	parts := strings.Split(path, "/")

	if len(parts) == 1 && r.Method == http.MethodGet {
		esc, err := h.engine.GetEscalation(r.Context(), parts[0])
		if err != nil {
			respondEscalationError(w, err)
			return
		}
		respondJSON(w, esc)
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		ByName string `json:"by_name"`
		Notes  string `json:"notes"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	byUserID := auth.SubjectFromContext(r.Context())
	if body.ByName == "" {
		body.ByName = byUserID
	}

	var (
		esc *escalations.Escalation
		err error
	)
	switch parts[1] {
	case "acknowledge":
		esc, err = h.engine.Acknowledge(r.Context(), parts[0], byUserID, body.ByName)
	case "resolve":
		esc, err = h.engine.Resolve(r.Context(), parts[0], byUserID, body.ByName, body.Notes)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondEscalationError(w, err)
		return
	}
	respondJSON(w, esc)
}

func respondEscalationError(w http.ResponseWriter, err error) {
	if errors.Is(err, escalations.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if escalations.IsInvalidTransition(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func respondJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
