package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/mandala-pos/terminal/internal/domain/order"
	"github.com/mandala-pos/terminal/internal/domain/product"
	"github.com/mandala-pos/terminal/internal/domain/staff"
	"github.com/mandala-pos/terminal/internal/terminal"
)

// respondError maps domain errors to status codes. Anything unmapped is
// logged and reported as 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status == http.StatusInternalServerError {
		logError(r, err)
	}
	writeError(w, status, message)
}

func mapError(err error) (int, string) {
	var brErr *badRequestError
	if errors.As(err, &brErr) {
		return http.StatusBadRequest, brErr.Error()
	}

	if errors.Is(err, order.ErrMissingProductID) {
		return http.StatusBadRequest, err.Error()
	}

	var iqErr *order.InvalidQuantityError
	if errors.As(err, &iqErr) {
		return http.StatusUnprocessableEntity, iqErr.Error()
	}

	var limErr *order.QuantityLimitError
	if errors.As(err, &limErr) {
		return http.StatusUnprocessableEntity, limErr.Error()
	}

	if errors.Is(err, order.ErrNegativePrice) {
		return http.StatusUnprocessableEntity, order.ErrNegativePrice.Error()
	}

	if errors.Is(err, product.ErrNotFound) {
		return http.StatusUnprocessableEntity, "product not found"
	}

	if errors.Is(err, terminal.ErrSessionNotFound) {
		return http.StatusNotFound, terminal.ErrSessionNotFound.Error()
	}

	if errors.Is(err, terminal.ErrSignedOut) {
		return http.StatusUnauthorized, terminal.ErrSignedOut.Error()
	}

	if errors.Is(err, staff.ErrInvalidToken) || errors.Is(err, staff.ErrUnauthorized) {
		return http.StatusUnauthorized, "unauthorized"
	}

	return http.StatusInternalServerError, "internal server error"
}
