package order

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mandala-pos/terminal/internal/domain/product"
)

// Aggregator owns the in-progress order of a single terminal. Lines are kept
// in order of first addition and there is at most one line per product id.
//
// An Aggregator is not safe for concurrent use; the owning session
// serialises access.
type Aggregator struct {
	lines []Line
}

// NewAggregator returns an empty order.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add increases the quantity of p's line by qty, appending a new line when p
// is not yet in the order. The product record of an existing line is kept.
// A resulting quantity above MaxQuantity is rejected. On error the order is
// left unchanged.
func (a *Aggregator) Add(p product.Product, qty int) ([]Line, error) {
	if p.ID == "" {
		return nil, ErrMissingProductID
	}
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductID: p.ID, Quantity: qty}
	}
	if p.Price.IsNegative() {
		return nil, ErrNegativePrice
	}

	if qty > MaxQuantity {
		return nil, &QuantityLimitError{ProductID: p.ID, Quantity: qty}
	}

	if i := a.indexOf(p.ID); i >= 0 {
		cur := a.lines[i].Quantity
		if qty > MaxQuantity-cur {
			return nil, &QuantityLimitError{ProductID: p.ID, Quantity: cur + qty}
		}
		a.lines[i].Quantity = cur + qty
	} else {
		a.lines = append(a.lines, Line{Product: p, Quantity: qty})
	}
	return a.Lines(), nil
}

// SetQuantity overwrites the quantity of the line for productID. A quantity
// of zero or less removes the line. Unknown ids are ignored.
func (a *Aggregator) SetQuantity(productID string, qty int) error {
	if productID == "" {
		return ErrMissingProductID
	}
	if qty > MaxQuantity {
		return &QuantityLimitError{ProductID: productID, Quantity: qty}
	}
	i := a.indexOf(productID)
	if i < 0 {
		return nil
	}
	if qty <= 0 {
		a.lines = slices.Delete(a.lines, i, i+1)
		return nil
	}
	a.lines[i].Quantity = qty
	return nil
}

// Remove deletes the line for productID if present.
func (a *Aggregator) Remove(productID string) error {
	return a.SetQuantity(productID, 0)
}

// Clear empties the order.
func (a *Aggregator) Clear() {
	a.lines = nil
}

// Lines returns a copy of the current lines.
func (a *Aggregator) Lines() []Line {
	return slices.Clone(a.lines)
}

// Quantity returns the quantity for productID, or 0 when absent.
func (a *Aggregator) Quantity(productID string) int {
	if i := a.indexOf(productID); i >= 0 {
		return a.lines[i].Quantity
	}
	return 0
}

// Items returns the number of units across all lines.
func (a *Aggregator) Items() int {
	n := 0
	for _, l := range a.lines {
		n += l.Quantity
	}
	return n
}

// Total is recomputed on every call.
func (a *Aggregator) Total() decimal.Decimal {
	return Total(a.lines)
}

func (a *Aggregator) indexOf(productID string) int {
	return slices.IndexFunc(a.lines, func(l Line) bool {
		return l.Product.ID == productID
	})
}
