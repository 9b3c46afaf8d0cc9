package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	"github.com/SergFTM/wealth-os-sub013/internal/eventing"
)

// IngestHandler accepts external events over HTTP and publishes them
// to the event bus, the same path Kafka messages take.
type IngestHandler struct {
	bus      *eventing.Bus
	tenantID string
}

// NewIngestHandler constructs a handler.
func NewIngestHandler(bus *eventing.Bus, tenantID string) (*IngestHandler, error) {
	if bus == nil {
		return nil, errors.New("ingest handler: nil bus")
	}
	return &IngestHandler{bus: bus, tenantID: tenantID}, nil
}

// ServeHTTP handles POST /api/v1/events.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		EventName string         `json:"event_name"`
		SubjectID string         `json:"subject_id"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if body.EventName == "" {
		http.Error(w, "event_name is required", http.StatusBadRequest)
		return
	}

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = h.tenantID
	}
	env, err := eventing.NewEnvelope(body.EventName, tenantID, body.SubjectID, body.Fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.bus.Publish(r.Context(), env)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"event_id": env.EventID})
}
