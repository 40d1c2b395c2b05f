package licensing

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Handler exposes licensing over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler constructs Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// MountRoutes registers the licensing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/license/requests", h.createRequest)
	r.Post("/license/requests/{ref}/activate", h.activate)
	r.Post("/license/requests/{ref}/reject", h.reject)
	r.Get("/license/evaluate", h.evaluate)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrgID int64 `json:"org_id"`
		Plan  Plan  `json:"plan"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	req, err := h.svc.CreateRequest(r.Context(), body.OrgID, body.Plan)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	sub, err := h.svc.Activate(r.Context(), chi.URLParam(r, "ref"), body.Code, actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reject(r.Context(), chi.URLParam(r, "ref"), actorFrom(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.RespondError(w, shared.Validationf("org query parameter required"))
		return
	}
	status, err := h.svc.Evaluate(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func actorFrom(r *http.Request) int64 {
	return shared.ActorFromContext(r.Context())
}
