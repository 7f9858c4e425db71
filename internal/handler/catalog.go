package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mandala-pos/terminal/internal/domain/product"
)

// ListCatalog returns the catalog filtered by the category and q query
// parameters.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "catalog.List")
	defer span.End()

	filter := product.Filter{
		Category: r.URL.Query().Get("category"),
		Query:    r.URL.Query().Get("q"),
	}
	span.SetAttributes(
		attribute.String("catalog.category", filter.Category),
		attribute.String("catalog.query", filter.Query),
	)

	products, err := h.catalog.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list products")
		respondError(w, r, errors.Wrap(err, "list products"))
		return
	}
	products = filter.Apply(products)
	span.SetAttributes(attribute.Int("catalog.results", len(products)))

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

// ListCategories returns the distinct catalog categories, led by "all".
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "catalog.Categories")
	defer span.End()

	products, err := h.catalog.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list products")
		respondError(w, r, errors.Wrap(err, "list products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			e.Str(product.AllCategories)
			for _, c := range product.Categories(products) {
				e.Str(c)
			}
		})
	})
}

// encodeProduct writes a catalog product. Relative image paths are prefixed
// with the configured imageBaseURL.
func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	image := p.ImageURL
	if image != "" && !strings.Contains(image, "://") {
		image = h.imageBaseURL + image
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.StringFixed(2)) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("imageUrl", func(e *jx.Encoder) { e.Str(image) })
	})
}
