package invoice

import "github.com/go-chi/chi/v5"

// MountRoutes registers invoice routes. Patterns stay flat so other packages
// can add sub-resources under /{id} on the same router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/cancel", h.cancel)
}
