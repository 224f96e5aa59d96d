package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gitlab.com/gitlab-org/labkit/tracing"

	"github.com/chtrembl/petstoreapp/internal/inbound"
	"github.com/chtrembl/petstoreapp/internal/service"
	"github.com/chtrembl/petstoreapp/internal/session"
)

// Services are the domain services exposed by the API.
type Services struct {
	Pets     *service.Pets
	Products *service.Products
	Orders   *service.Orders
	Health   *service.Health
}

// NewRouter builds the application handler. Every request gets a tracing
// span and a RequestContext. API routes additionally resolve the session.
func NewRouter(establisher *inbound.Establisher, sessions *session.Middleware, svc Services) http.Handler {
	h := &handlers{services: svc, sessions: sessions.Store()}

	r := chi.NewRouter()
	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(sessions.Handler)

		r.Get("/api/pets", h.pets)
		r.Get("/api/products", h.products)
		r.Post("/api/cart", h.updateCart)
		r.Get("/api/orders/{id}", h.order)
		r.Get("/api/session", h.session)
	})

	return tracing.Handler(establisher.Handler(r), tracing.WithRouteIdentifier("petstoreapp"))
}
