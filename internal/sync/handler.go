package sync

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
)

// Handler exposes the staleness view.
type Handler struct {
	reconciler *Reconciler
}

// NewHandler constructs Handler.
func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// MountRoutes registers the status endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sync/status", h.status)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.reconciler.Status())
}
