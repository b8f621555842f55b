package payments

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

func actorOrFail(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("quotation_id")
	quotationID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || quotationID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: quotation_id query parameter required", shared.ErrValidation))
		return
	}
	list, err := h.service.ListByQuotation(r.Context(), quotationID)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	p, err := h.service.Create(r.Context(), req, actor)
	if err != nil {
		h.logger.Error("create payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

type actionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(id int64, actor shared.Actor, reason string) (*Payment, error)) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid payment id", shared.ErrValidation))
		return
	}
	var body actionRequest
	_ = httpx.DecodeJSON(r, &body)
	p, err := fn(id, actor, body.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, _ string) (*Payment, error) {
		return h.service.Approve(r.Context(), id, actor)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(id int64, actor shared.Actor, reason string) (*Payment, error) {
		return h.service.Reject(r.Context(), id, actor, reason)
	})
}
