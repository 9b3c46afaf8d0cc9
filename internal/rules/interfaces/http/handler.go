package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SergFTM/wealth-os-sub013/internal/engine"
	rulesapp "github.com/SergFTM/wealth-os-sub013/internal/rules/application"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// Handler provides notification rule HTTP endpoints.
type Handler struct {
	engine *engine.Service
}

// NewHandler constructs a handler.
func NewHandler(eng *engine.Service) (*Handler, error) {
	if eng == nil {
		return nil, errors.New("rules handler: nil engine")
	}
	return &Handler{engine: eng}, nil
}

// ServeHTTP handles /api/v1/rules and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/rules":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/api/v1/rules/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	list, err := h.engine.ListRules(r.Context(), status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rule rules.NotificationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	created, err := h.engine.CreateRule(r.Context(), rule)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/rules/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rule, err := h.engine.GetRule(r.Context(), parts[0])
		if err != nil {
			respondRuleError(w, err)
			return
		}
		respondJSON(w, rule)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		var patch rulesapp.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		updated, err := h.engine.UpdateRule(r.Context(), parts[0], patch)
		if err != nil {
			respondRuleError(w, err)
			return
		}
		respondJSON(w, updated)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		updated, err := h.engine.SetRuleStatus(r.Context(), parts[0], body.Status)
		if err != nil {
			respondRuleError(w, err)
			return
		}
		respondJSON(w, updated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func respondRuleError(w http.ResponseWriter, err error) {
	if errors.Is(err, rules.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if rules.IsValidation(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
