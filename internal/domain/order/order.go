package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mandala-pos/terminal/internal/domain/product"
)

// MaxQuantity bounds the quantity of a single line.
const MaxQuantity = 9999

// Sentinel errors for order validation.
var (
	ErrMissingProductID = errors.New("product id required")
	ErrNegativePrice    = errors.New("unit price must not be negative")
)

// InvalidQuantityError indicates a non-positive quantity on the add path.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// QuantityLimitError indicates a line quantity above MaxQuantity.
type QuantityLimitError struct {
	ProductID string
	Quantity  int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity for product %s would be %d, limit is %d", e.ProductID, e.Quantity, MaxQuantity)
}

// Line is one product's aggregated quantity within an order.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns quantity × unit price for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}
