package terminal

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/mandala-pos/terminal/internal/domain/order"
	"github.com/mandala-pos/terminal/internal/domain/pin"
	"github.com/mandala-pos/terminal/internal/domain/staff"
)

// CartView is a copy of a session's order.
type CartView struct {
	Lines []order.Line
	Items int
	Total decimal.Decimal
}

// Encode writes the order as JSON. Money is rendered with two decimals.
func (v CartView) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range v.Lines {
					encodeLine(e, l)
				}
			})
		})
		e.Field("items", func(e *jx.Encoder) { e.Int(v.Items) })
		e.Field("total", func(e *jx.Encoder) { e.Str(v.Total.StringFixed(2)) })
	})
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.Product.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(l.Product.Category) })
		e.Field("unitPrice", func(e *jx.Encoder) { e.Str(l.Product.Price.StringFixed(2)) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(l.Subtotal().StringFixed(2)) })
	})
}

// EncodePin writes a PIN pad state. Masked output replaces digits with "*"
// for screens the customer can see.
func EncodePin(e *jx.Encoder, st pin.State, masked bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("slots", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, slot := range st.Slots {
					if masked && slot != "" {
						slot = "*"
					}
					e.Str(slot)
				}
			})
		})
		e.Field("focus", func(e *jx.Encoder) { e.Int(st.Focus) })
		e.Field("filled", func(e *jx.Encoder) { e.Int(st.Filled) })
		e.Field("phase", func(e *jx.Encoder) { e.Str(st.Phase.String()) })
	})
}

// EncodeMember writes the public fields of a staff member.
func EncodeMember(e *jx.Encoder, m staff.Member) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(m.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		e.Field("role", func(e *jx.Encoder) { e.Str(string(m.Role)) })
	})
}

func encode(fn func(e *jx.Encoder)) []byte {
	var e jx.Encoder
	fn(&e)
	return e.Bytes()
}
