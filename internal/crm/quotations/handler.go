package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-crm/meridian/internal/platform/httpx"
	"github.com/meridian-crm/meridian/internal/shared"
)

// SummarySource resolves the customer-facing balance figures for a
// quotation. Implemented by the reconciliation facade; handlers never derive
// balances themselves.
type SummarySource interface {
	Summary(ctx context.Context, quotationID int64) (SummaryResponse, error)
}

type Handler struct {
	logger    *slog.Logger
	service   *Service
	summaries SummarySource
	validate  *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, summaries SummarySource) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		summaries: summaries,
		validate:  validator.New(),
	}
}

// Summary serves GET /quotations/{id}/summary through the reconciliation
// facade.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.summaries.Summary(r.Context(), id)
	if err != nil {
		h.logger.Error("quotation summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func actorOrFail(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return shared.Actor{}, false
	}
	return actor, true
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid quotation id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListQuotationsRequest{Limit: 50}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid customer_id", shared.ErrValidation))
			return
		}
		req.CustomerID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		req.Status = &raw
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			req.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			req.Offset = n
		}
	}

	quotes, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list quotations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotations": quotes,
		"pagination": shared.NewPagination(req.Offset/maxInt(req.Limit, 1)+1, req.Limit, total),
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Items serves the quotation's current item set. Revision display resolves
// effective items from here plus the stored amendment detail; the quotation
// remains the source of truth for product metadata.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": q.Items})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	q, err := h.service.Create(r.Context(), req, actor)
	if err != nil {
		h.logger.Error("create quotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	q, err := h.service.Update(r.Context(), id, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

type actionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(id int64, actor shared.Actor, reason string) (*Quotation, error)) {
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
	// Action endpoints accept an empty body.
	_ = httpx.DecodeJSON(r, &body)
	q, err := fn(id, actor, body.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*Quotation, error) {
		return h.service.Submit(r.Context(), id, actor)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*Quotation, error) {
		return h.service.Approve(r.Context(), id, actor)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, reason string) (*Quotation, error) {
		return h.service.Reject(r.Context(), id, actor, reason)
	})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*Quotation, error) {
		return h.service.Send(r.Context(), id, actor)
	})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*Quotation, error) {
		return h.service.Accept(r.Context(), id, actor)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, reason string) (*Quotation, error) {
		return h.service.Cancel(r.Context(), id, actor, reason)
	})
}
