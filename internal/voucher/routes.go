package voucher

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers voucher routes. publicPerMinute throttles the
// unauthenticated registration and scan endpoints per client IP; zero
// disables the limit.
func (h *Handler) MountRoutes(r chi.Router, publicPerMinute int) {
	r.Get("/", h.byPassport)
	r.Route("/{code}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Group(func(r chi.Router) {
			if publicPerMinute > 0 {
				r.Use(httprate.LimitByIP(publicPerMinute, time.Minute))
			}
			r.Get("/validate", h.validate)
			r.Post("/passport", h.registerPassport)
		})
		r.Post("/redeem", h.redeem)
		r.Post("/void", h.void)
	})
}
