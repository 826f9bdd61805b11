package quotation

import "github.com/go-chi/chi/v5"

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Get("/approvals", h.approvals)
		r.Post("/send", h.send)
		r.Post("/approve", h.approve)
		r.Post("/convert", h.convert)
	})
}
