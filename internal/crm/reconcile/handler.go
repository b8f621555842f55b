package reconcile

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-crm/meridian/internal/platform/httpx"
	"github.com/meridian-crm/meridian/internal/shared"
)

type Handler struct {
	logger *slog.Logger
	facade *Facade
}

func NewHandler(logger *slog.Logger, facade *Facade) *Handler {
	return &Handler{logger: logger, facade: facade}
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.facade.Balance(r.Context(), id)
	if err != nil {
		h.logger.Error("quotation balance", slog.Int64("quotation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.facade.Timeline(r.Context(), id)
	if err != nil {
		h.logger.Error("payment timeline", slog.Int64("quotation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"timeline": entries})
}

func (h *Handler) ActivePI(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pi, err := h.facade.ActivePI(r.Context(), id)
	if err != nil {
		h.logger.Error("active pi", slog.Int64("quotation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if pi == nil {
		httpx.RespondError(w, fmt.Errorf("%w: no approved proforma invoice for quotation %d", shared.ErrNotFound, id))
		return
	}
	httpx.JSON(w, http.StatusOK, pi)
}

func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	credit, err := h.facade.Credit(r.Context(), id)
	if err != nil {
		h.logger.Error("customer credit", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, credit)
}
