package http

import (
	mid "github.com/JMURv/session-core/internal/hdl/http/middleware"
	chi "github.com/go-chi/chi/v5"
)

func (h *Handler) RegisterRoutes() {
	h.router.Route(
		"/auth", func(r chi.Router) {
			r.With(mid.Device).Post("/signup", h.signup)
			r.With(mid.Device).Post("/login", h.login)
			r.With(mid.Device).Post("/refresh", h.refresh)

			r.Group(
				func(r chi.Router) {
					r.Use(mid.Auth(h.ctrl))
					r.Post("/logout", h.logout)
					r.Post("/logout-all", h.logoutAll)
					r.Put("/password", h.changePassword)
					r.Post("/verification/send", h.sendVerification)
					r.Post("/verification/confirm", h.confirmVerification)
				},
			)
		},
	)

	h.router.With(mid.Auth(h.ctrl)).Get("/me", h.me)
	h.router.With(mid.Auth(h.ctrl)).Get("/devices", h.listDevices)
	h.router.With(mid.Auth(h.ctrl)).Delete("/devices/{id}", h.removeDevice)

	if h.ws != nil {
		h.router.Get("/ws", h.ws.ServeHTTP)
	}
}
