package proforma

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-crm/meridian/internal/platform/httpx"
	"github.com/meridian-crm/meridian/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid proforma invoice id", shared.ErrValidation)
	}
	return id, nil
}

func actorOrFail(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pi, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pi)
}

// Effective serves the display-time resolution of a PI: effective items
// re-derived from the quotation's current item set plus the stored
// amendment detail.
func (h *Handler) Effective(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Effective(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("quotation_id")
	quotationID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || quotationID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: quotation_id query parameter required", shared.ErrValidation))
		return
	}
	pis, err := h.service.ListByQuotation(r.Context(), quotationID)
	if err != nil {
		h.logger.Error("list proforma invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"proforma_invoices": pis})
}

type createPIRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	var req createPIRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	pi, err := h.service.CreateFromQuotation(r.Context(), req.QuotationID, actor)
	if err != nil {
		h.logger.Error("create proforma invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pi)
}

func (h *Handler) CreateRevision(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	parentID, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateRevisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	pi, err := h.service.CreateRevision(r.Context(), parentID, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pi)
}

type actionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(id int64, actor shared.Actor, reason string) (*ProformaInvoice, error)) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body actionRequest
	_ = httpx.DecodeJSON(r, &body)
	pi, err := fn(id, actor, body.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pi)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*ProformaInvoice, error) {
		return h.service.Submit(r.Context(), id, actor)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*ProformaInvoice, error) {
		return h.service.Approve(r.Context(), id, actor)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, reason string) (*ProformaInvoice, error) {
		return h.service.Reject(r.Context(), id, actor, reason)
	})
}
