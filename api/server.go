/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     Structured request logging (slog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests with credentials for the web front-end

ROUTE GROUPS:
  /api/register, /login, /forgot-password, /reset-password   Public
  /api/logout, /api/children/*, /api/payments/*              Session required
  /api/scenarios/*                                           Demo mode only

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Session and logging middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/logout", h.Logout)

			// Child routes
			r.Route("/children", func(r chi.Router) {
				r.Get("/", h.ListChildren)
				r.Post("/", h.CreateChild)
				r.Get("/{id}", h.GetChild)
				r.Put("/{id}", h.UpdateChild)
				r.Delete("/{id}", h.DeleteChild)
				r.Get("/{id}/ledger", h.GetLedger)
			})

			// Payment routes; {id} is a child id on GET and a payment id otherwise
			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.CreatePayment)
				r.Get("/{id}", h.ListPayments)
				r.Put("/{id}", h.UpdatePayment)
				r.Delete("/{id}", h.DeletePayment)
			})
		})

		// Scenario routes
		if h.demo {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
