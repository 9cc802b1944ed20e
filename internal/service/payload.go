package service

import (
	"fmt"

	"github.com/cafe-pos/register/internal/backend"
	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/observation"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/shopspring/decimal"
)

// wire rounds a computed amount to cents for a backend payload. Nothing is
// rounded before the breakdown is complete.
func wire(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func wirePtr(d decimal.Decimal) *decimal.Decimal {
	v := wire(d)
	return &v
}

func saleLines(lines []cart.Line) []backend.SaleLine {
	out := make([]backend.SaleLine, 0, len(lines))
	for _, l := range lines {
		sl := backend.SaleLine{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			UnitPrice:    wire(l.UnitPrice),
			Subtotal:     wire(l.Subtotal()),
			Observations: l.Observations(),
		}
		if l.IsCustom() {
			sl.CustomName = l.Name
		}
		out = append(out, sl)
	}
	return out
}

func comandaLines(lines []cart.Line) []backend.ComandaLine {
	out := make([]backend.ComandaLine, 0, len(lines))
	for _, l := range lines {
		cl := backend.ComandaLine{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Observations: l.Observations(),
		}
		if l.IsCustom() {
			cl.CustomName = l.Name
		}
		if p := l.Modifiers.Prep; p != "" && p != modifier.PrepNone {
			cl.PrepStyle = string(p)
		}
		out = append(out, cl)
	}
	return out
}

func preorderLines(lines []cart.Line) []backend.PreorderLine {
	out := make([]backend.PreorderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, backend.PreorderLine{
			ProductID:    l.ProductID,
			Name:         l.Name,
			Quantity:     l.Quantity,
			UnitPrice:    wire(l.UnitPrice),
			Subtotal:     wire(l.Subtotal()),
			Observations: l.Observations(),
		})
	}
	return out
}

// linesFromPreorder rebuilds cart lines, recovering modifiers from the
// observations text. UnitPrice on the wire is the base price.
func linesFromPreorder(in []backend.PreorderLine) []cart.Line {
	out := make([]cart.Line, 0, len(in))
	for _, pl := range in {
		set, note := observation.Decode(pl.Observations)
		out = append(out, cart.Line{
			ProductID: pl.ProductID,
			Name:      lineName(pl.Name, pl.ProductID),
			UnitPrice: pl.UnitPrice,
			Quantity:  pl.Quantity,
			Modifiers: set,
			Note:      note,
		})
	}
	return out
}

func linesFromSale(in []backend.SaleLine) []cart.Line {
	out := make([]cart.Line, 0, len(in))
	for _, sl := range in {
		set, note := observation.Decode(sl.Observations)
		out = append(out, cart.Line{
			ProductID: sl.ProductID,
			Name:      lineName(sl.CustomName, sl.ProductID),
			UnitPrice: sl.UnitPrice,
			Quantity:  sl.Quantity,
			Modifiers: set,
			Note:      note,
		})
	}
	return out
}

// linesFromComanda is the fallback when the ticket's sale came without
// lines. Prices are unknown and left at zero.
func linesFromComanda(in []backend.ComandaLine) []cart.Line {
	out := make([]cart.Line, 0, len(in))
	for _, cl := range in {
		set, note := observation.Decode(cl.Observations)
		if cl.PrepStyle != "" && set.Prep == modifier.PrepNone {
			if p := modifier.Prep(cl.PrepStyle); (modifier.Set{Prep: p}).Validate() == nil {
				set.Prep = p
			}
		}
		out = append(out, cart.Line{
			ProductID: cl.ProductID,
			Name:      lineName(cl.CustomName, cl.ProductID),
			Quantity:  cl.Quantity,
			Modifiers: set,
			Note:      note,
		})
	}
	return out
}

func lineName(name string, productID *int64) string {
	if name != "" {
		return name
	}
	if productID != nil {
		return fmt.Sprintf("Producto #%d", *productID)
	}
	return "Artículo"
}

// discountFields renders the active discount for a payload. All three are
// nil when no discount applies.
func discountFields(d pricing.Discount, amount decimal.Decimal) (string, *decimal.Decimal, *decimal.Decimal) {
	if d.IsZero() || !amount.IsPositive() {
		return "", nil, nil
	}
	return d.Kind, wirePtr(d.Value), wirePtr(amount)
}

// tipFields renders the active tip for a payload. A percentage tip sends both
// the percentage and the amount it currently yields; a custom tip sends only
// the amount.
func tipFields(t pricing.Tip, amount decimal.Decimal) (pct, amt *decimal.Decimal) {
	if t.IsZero() || !amount.IsPositive() {
		return nil, nil
	}
	if t.Kind == enum.TipKindPercentage {
		v := t.Value
		pct = &v
	}
	return pct, wirePtr(amount)
}
