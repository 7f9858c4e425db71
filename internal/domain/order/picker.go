package order

// Picker is the quantity selector shown on a product card before the product
// is added to the order. Unlike SetQuantity it never goes below one.
type Picker struct {
	qty int
}

// NewPicker returns a picker set to one.
func NewPicker() *Picker {
	return &Picker{qty: 1}
}

// Increment raises the picked quantity by one, capping at MaxQuantity.
func (p *Picker) Increment() int {
	if p.qty < MaxQuantity {
		p.qty++
	}
	return p.qty
}

// Decrement lowers the picked quantity by one, flooring at one.
func (p *Picker) Decrement() int {
	if p.qty > 1 {
		p.qty--
	}
	return p.qty
}

// Quantity returns the picked quantity.
func (p *Picker) Quantity() int {
	return p.qty
}

// Reset returns the picker to one.
func (p *Picker) Reset() {
	p.qty = 1
}
