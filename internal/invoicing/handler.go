package invoicing

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Handler exposes the document lifecycle over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler constructs Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// MountRoutes registers the invoicing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createDraft)
	r.Get("/invoices", h.list)
	r.Get("/invoices/{id}", h.get)
	r.Put("/invoices/{id}/lines", h.updateLines)
	r.Post("/invoices/{id}/issue", h.issue)
	r.Post("/invoices/{id}/cancel", h.cancel)
	r.Post("/invoices/{id}/void", h.void)
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	var in DraftInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	inv, err := h.svc.CreateDraft(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid document id"))
		return
	}
	inv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		DocType: DocumentType(r.URL.Query().Get("doc_type")),
		Status:  Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("org_id"); v != "" {
		filter.OrgID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("invalid from timestamp"))
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("invalid to timestamp"))
			return
		}
		filter.To = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	invoices, err := h.svc.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid document id"))
		return
	}
	var body struct {
		Lines []LineInput `json:"lines"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	inv, err := h.svc.UpdateDraftLines(r.Context(), id, body.Lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid document id"))
		return
	}
	inv, err := h.svc.Issue(r.Context(), id, actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.svc.Cancel)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.svc.Void)
}

func (h *Handler) terminate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, reason string, actor int64) (Invoice, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid document id"))
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	inv, err := fn(r.Context(), id, body.Reason, actorFrom(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("document id must be a positive integer")
	}
	return id, nil
}

func actorFrom(r *http.Request) int64 {
	return shared.ActorFromContext(r.Context())
}
