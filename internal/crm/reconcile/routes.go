package reconcile

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconcile/quotations/{id}", func(r chi.Router) {
		r.Get("/balance", h.Balance)
		r.Get("/timeline", h.Timeline)
		r.Get("/active-pi", h.ActivePI)
	})
	r.Get("/customers/{id}/credit", h.Credit)
}
