package proforma

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pis", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/effective", h.Effective)
		r.Post("/{id}/revised", h.CreateRevision)
		r.Post("/{id}/submit-revised", h.Submit)
		r.Post("/{id}/approve-revised", h.Approve)
		r.Post("/{id}/reject-revised", h.Reject)
	})
}
