package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Handler exposes the stock ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.recordMovement)
	r.Get("/movements", h.listMovements)
	r.Get("/products/{id}/quantity", h.currentQuantity)
	r.Get("/low", h.lowStock)
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var input MovementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")

	mv, err := h.service.RecordMovement(r.Context(), input)
	if err != nil {
		h.logger.Warn("record movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movements, err := h.service.Movements(r.Context(), MovementFilter{OrgID: orgID, ProductID: productID, Limit: limit})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) currentQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid product id"))
		return
	}
	qty, err := h.service.CurrentQuantity(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"product_id": id, "quantity": qty})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
	if err != nil || orgID == 0 {
		httpx.RespondError(w, shared.Validationf("org query parameter required"))
		return
	}
	items, err := h.service.LowStock(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}
