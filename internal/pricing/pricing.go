// Package pricing computes order totals from a cart snapshot and the active
// discount and tip policy.
package pricing

import (
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount is the order discount policy. The zero value means no discount.
type Discount struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// IsZero reports whether no discount is selected.
func (d Discount) IsZero() bool {
	return d.Kind == ""
}

// Tip is the tip policy. The zero value means no tip. For TipKindCustom,
// Value is the fixed amount.
type Tip struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// IsZero reports whether no tip is selected.
func (t Tip) IsZero() bool {
	return t.Kind == ""
}

// Breakdown is every intermediate value of a pricing run. Nothing is rounded;
// use Money to render a value.
type Breakdown struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	MilkTotal        decimal.Decimal `json:"milk_total"`
	ExtrasTotal      decimal.Decimal `json:"extras_total"`
	ProteinTotal     decimal.Decimal `json:"protein_total"`
	ModifierTotal    decimal.Decimal `json:"modifier_total"`
	Gross            decimal.Decimal `json:"gross"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	NetAfterDiscount decimal.Decimal `json:"net_after_discount"`
	TipAmount        decimal.Decimal `json:"tip_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
}

// Compute prices lines under d and t. The order of operations is fixed:
// subtotal, modifier total, gross, discount on gross, net, tip on net, total.
func Compute(lines []cart.Line, d Discount, t Tip) Breakdown {
	var b Breakdown

	// 1-2. base subtotal and surcharges, both per unit x quantity
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		b.Subtotal = b.Subtotal.Add(l.UnitPrice.Mul(qty))
		b.MilkTotal = b.MilkTotal.Add(l.Modifiers.MilkSurcharge().Mul(qty))
		b.ExtrasTotal = b.ExtrasTotal.Add(l.Modifiers.ExtrasSurcharge().Mul(qty))
		b.ProteinTotal = b.ProteinTotal.Add(l.Modifiers.ProteinSurcharge().Mul(qty))
	}
	b.ModifierTotal = b.MilkTotal.Add(b.ExtrasTotal).Add(b.ProteinTotal)

	// 3. gross
	b.Gross = b.Subtotal.Add(b.ModifierTotal)

	// 4-5. discount, clamped to [0, gross]
	b.DiscountAmount = DiscountAmount(b.Gross, d)
	b.NetAfterDiscount = b.Gross.Sub(b.DiscountAmount)

	// 6-7. tip on the discounted amount
	b.TipAmount = TipAmount(b.NetAfterDiscount, t)
	b.GrandTotal = b.NetAfterDiscount.Add(b.TipAmount)

	return b
}

// DiscountAmount applies d to gross. The result is always within [0, gross].
func DiscountAmount(gross decimal.Decimal, d Discount) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Kind {
	case enum.DiscountKindPercentage:
		amount = gross.Mul(d.Value).Div(hundred)
	case enum.DiscountKindAmount:
		amount = decimal.Min(d.Value, gross)
	default:
		return decimal.Zero
	}
	return clamp(amount, decimal.Zero, decimal.Max(gross, decimal.Zero))
}

// TipAmount applies t to net. Percentage tips follow net; custom tips are the
// fixed amount. Negative results clamp to zero.
func TipAmount(net decimal.Decimal, t Tip) decimal.Decimal {
	var amount decimal.Decimal
	switch t.Kind {
	case enum.TipKindPercentage:
		amount = net.Mul(t.Value).Div(hundred)
	case enum.TipKindCustom:
		amount = t.Value
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Money renders d with two fraction digits, for presentation and the wire.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
