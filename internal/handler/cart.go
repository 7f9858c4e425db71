package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mandala-pos/terminal/internal/terminal"
)

// GetCart returns the terminal's order.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeCart(w, sessionFrom(r.Context()).Cart())
}

// AddItem adds a product to the order, merging with an existing line.
// quantity defaults to 1.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		qty       = 1
	)
	if err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"productId": strField(&productID),
		"quantity":  intField(&qty, nil),
	}); err != nil {
		respondError(w, r, err)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "cart.AddItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int("cart.quantity", qty),
	)

	cart, err := sessionFrom(ctx).AddItem(ctx, productID, qty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add item")
		respondError(w, r, err)
		return
	}
	writeCart(w, cart)
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var (
		qty int
		set bool
	)
	if err := decodeObject(w, r, map[string]func(*jx.Decoder) error{
		"quantity": intField(&qty, &set),
	}); err != nil {
		respondError(w, r, err)
		return
	}
	if !set {
		respondError(w, r, badRequest("quantity is required"))
		return
	}

	cart, err := sessionFrom(r.Context()).SetQuantity(r.Context(), chi.URLParam(r, "pid"), qty)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCart(w, cart)
}

// RemoveItem removes a line. Unknown products are ignored.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := sessionFrom(r.Context()).RemoveItem(r.Context(), chi.URLParam(r, "pid"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCart(w, cart)
}

// ClearCart empties the order.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := sessionFrom(r.Context()).ClearCart(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCart(w, cart)
}

// IncrementPicker raises a product card's picked quantity.
func (h *Handler) IncrementPicker(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	qty, err := sessionFrom(r.Context()).IncrementPicker(r.Context(), pid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writePicker(w, pid, qty)
}

// DecrementPicker lowers a product card's picked quantity, never below one.
func (h *Handler) DecrementPicker(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "pid")
	qty, err := sessionFrom(r.Context()).DecrementPicker(r.Context(), pid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writePicker(w, pid, qty)
}

// AddPicked adds the picked quantity of a product card to the order.
func (h *Handler) AddPicked(w http.ResponseWriter, r *http.Request) {
	cart, err := sessionFrom(r.Context()).AddPicked(r.Context(), chi.URLParam(r, "pid"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeCart(w, cart)
}

func writeCart(w http.ResponseWriter, cart terminal.CartView) {
	writeJSON(w, http.StatusOK, cart.Encode)
}

func writePicker(w http.ResponseWriter, productID string, qty int) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(productID) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(qty) })
		})
	})
}
