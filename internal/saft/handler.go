package saft

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Handler streams audit file exports.
type Handler struct {
	exporter *Exporter
}

// NewHandler constructs Handler.
func NewHandler(exporter *Exporter) *Handler {
	return &Handler{exporter: exporter}
}

// MountRoutes registers the export endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/saft", h.export)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.RespondError(w, shared.Validationf("org query parameter required"))
		return
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		httpx.RespondError(w, shared.Validationf("from must be YYYY-MM-DD"))
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		httpx.RespondError(w, shared.Validationf("to must be YYYY-MM-DD"))
		return
	}
	// The range is inclusive of the end day.
	to = to.Add(24*time.Hour - time.Nanosecond)

	w.Header().Set("Content-Type", "application/xml; charset=windows-1252")
	w.Header().Set("Content-Disposition", `attachment; filename="saft.xml"`)
	if err := h.exporter.Export(r.Context(), w, orgID, from, to); err != nil {
		httpx.RespondError(w, err)
		return
	}
}
