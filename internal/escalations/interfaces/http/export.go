package http

import (
	"net/http"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/engine"
	"github.com/SergFTM/wealth-os-sub013/internal/escalations/interfaces"
)

// ExportHandler serves escalation report downloads.
type ExportHandler struct {
	engine *engine.Service
}

// NewExportHandler constructs an export handler.
func NewExportHandler(eng *engine.Service) *ExportHandler {
	return &ExportHandler{engine: eng}
}

// ServeHTTP handles GET /api/v1/exports/escalations.{xlsx,pdf}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.engine == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	status := r.URL.Query().Get("status")
	list, err := h.engine.ListEscalations(r.Context(), status)
	if err != nil {
		http.Error(w, "query escalations error", http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()

	switch r.URL.Path {
	case "/api/v1/exports/escalations.xlsx":
		payload, err := interfaces.BuildEscalationXLSX(list, now)
		if err != nil {
			http.Error(w, "build xlsx error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="escalations.xlsx"`)
		_, _ = w.Write(payload)
	case "/api/v1/exports/escalations.pdf":
		payload, err := interfaces.BuildEscalationPDF(list, now)
		if err != nil {
			http.Error(w, "build pdf error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="escalations.pdf"`)
		_, _ = w.Write(payload)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
