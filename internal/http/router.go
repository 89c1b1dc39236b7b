package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(h.logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(VisitorMiddleware(h.sessions, h.logger))
		r.Use(CredentialsMiddleware)

		r.Get("/", h.Home)
		r.Get("/events/{id}", h.Event)
		r.Post("/events/{id}/cart", h.UpdateCart)
		r.Get("/cart", h.Cart)
		r.Post("/cart/update", h.CartUpdate)
		r.Post("/cart/remove", h.RemoveFromCart)
		r.Post("/cart/clear", h.ClearCart)
		r.Post("/cart/reserve", h.Reserve)

		r.Get("/checkout", h.Checkout)
		r.Get("/checkout/countdown", h.Countdown)
		r.Post("/checkout/pay", h.Pay)
		r.Post("/checkout/cancel", h.Cancel)
		r.Get("/checkout/success", h.Success)
		r.Get("/checkout/pending", h.Pending)
		r.Get("/checkout/failure", h.Failure)

		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/register", h.RegisterPage)
		r.Post("/register", h.Register)
		r.Get("/profile", h.Profile)
		r.Get("/tickets/{code}/qrcode", h.TicketQR)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminGate(h.now))
			r.Get("/", h.AdminEvents)
			r.Get("/events", h.AdminEvents)
			r.Get("/events/new", h.NewEventForm)
			r.Post("/events", h.CreateEvent)
			r.Get("/events/{id}", h.EditEventForm)
			r.Post("/events/{id}", h.UpdateEvent)
			r.Post("/events/{id}/status", h.SetEventStatus)
			r.Post("/events/{id}/delete", h.DeleteEvent)
			r.Get("/organizers", h.Organizers)
			r.Get("/activity", h.Activity)
		})
	})

	return r
}
