// Package handler exposes the fulfillment API over HTTP. Routing is chi,
// request and response bodies are hand-written jx codecs, and all business
// logic lives in the injected domain services.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/orbisretail/fulfillment/internal/domain/order"
	"github.com/orbisretail/fulfillment/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler wires the HTTP surface to the product repository and order
// service.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	imageBaseURL string
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, products product.Repository, orders *order.Service) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes builds the API router. Administrative mutations sit behind the
// API-key security middleware; checkout and tracking are public.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/track", h.TrackOrder)

	r.Group(func(r chi.Router) {
		r.Use(sec.RequireAPIKey)
		r.Get("/orders/{id}", h.GetOrder)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		r.Patch("/orders/{id}/payment", h.UpdatePaymentStatus)
		r.Post("/orders/{id}/notes", h.AddOrderNote)
		r.Put("/orders/{id}/tracking", h.SetTracking)
	})

	return r
}
