// Package handler exposes the terminal API over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/mandala-pos/terminal/internal/display"
	"github.com/mandala-pos/terminal/internal/domain/product"
	"github.com/mandala-pos/terminal/internal/terminal"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in catalog responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the catalog, terminal sessions and the display socket.
type Handler struct {
	catalog      product.Repository
	sessions     *terminal.Manager
	hub          *display.Hub
	tracer       trace.Tracer
	imageBaseURL string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	cfg HandlerConfig,
	catalog product.Repository,
	sessions *terminal.Manager,
	hub *display.Hub,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		catalog:      catalog,
		sessions:     sessions,
		hub:          hub,
		tracer:       tracer,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns a router serving every API route.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.ListCatalog)
		r.Get("/catalog/categories", h.ListCategories)

		r.Post("/terminals", h.OpenTerminal)
		r.Route("/terminals/{tid}", func(r chi.Router) {
			r.Use(h.withSession)
			r.Delete("/", h.CloseTerminal)

			r.Get("/cart", h.GetCart)
			r.Post("/pickers/{pid}/increment", h.IncrementPicker)
			r.Post("/pickers/{pid}/decrement", h.DecrementPicker)

			r.Get("/pin", h.GetPin)
			r.Post("/pin/digit", h.PinDigit)
			r.Post("/pin/backspace", h.PinBackspace)
			r.Post("/pin/clear", h.PinClear)
			r.Post("/pin/paste", h.PinPaste)
			r.Post("/pin/reset", h.PinReset)

			r.Get("/staff", h.GetStaff)

			r.Group(func(r chi.Router) {
				r.Use(h.requireStaff)
				r.Delete("/cart", h.ClearCart)
				r.Post("/cart/items", h.AddItem)
				r.Put("/cart/items/{pid}", h.SetQuantity)
				r.Delete("/cart/items/{pid}", h.RemoveItem)
				r.Post("/pickers/{pid}/add", h.AddPicked)
				r.Post("/signout", h.SignOut)
			})
		})
	})

	r.With(h.withSession).Get("/ws/terminals/{tid}/display", h.Display)
}

// Display upgrades to a WebSocket streaming the terminal's display events.
func (h *Handler) Display(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := display.Serve(h.hub, s.ID(), w, r); err != nil {
		// The upgrader has already replied.
		logError(r, err)
	}
}
