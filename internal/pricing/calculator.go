package pricing

import (
	"errors"
	"fmt"

	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/shopspring/decimal"
)

// ErrInvalidKind is returned for an unknown discount or tip kind.
var ErrInvalidKind = errors.New("invalid kind")

// Calculator holds the single active discount and tip of the register.
// Selecting a new policy replaces the previous one; there is no stacking.
// Percentage tips are never stored as amounts, so every Compute reflects the
// current cart and discount.
type Calculator struct {
	discount Discount
	tip      Tip
}

// SetDiscount selects a discount. kind must be a discount kind.
func (c *Calculator) SetDiscount(kind string, value decimal.Decimal) error {
	switch kind {
	case enum.DiscountKindPercentage, enum.DiscountKindAmount:
	default:
		return fmt.Errorf("discount: %w: %q", ErrInvalidKind, kind)
	}
	c.discount = Discount{Kind: kind, Value: value}
	return nil
}

// ClearDiscount removes the discount.
func (c *Calculator) ClearDiscount() {
	c.discount = Discount{}
}

// SetTip selects a tip. For TipKindCustom, value is the fixed tip amount.
func (c *Calculator) SetTip(kind string, value decimal.Decimal) error {
	switch kind {
	case enum.TipKindPercentage, enum.TipKindCustom:
	default:
		return fmt.Errorf("tip: %w: %q", ErrInvalidKind, kind)
	}
	c.tip = Tip{Kind: kind, Value: value}
	return nil
}

// ClearTip removes the tip.
func (c *Calculator) ClearTip() {
	c.tip = Tip{}
}

// Reset clears both policies.
func (c *Calculator) Reset() {
	c.discount = Discount{}
	c.tip = Tip{}
}

// Discount returns the active discount.
func (c *Calculator) Discount() Discount {
	return c.discount
}

// Tip returns the active tip.
func (c *Calculator) Tip() Tip {
	return c.tip
}

// Restore sets both policies at once, used when a saved draft is reloaded.
// Unknown kinds are dropped.
func (c *Calculator) Restore(d Discount, t Tip) {
	c.Reset()
	if !d.IsZero() {
		_ = c.SetDiscount(d.Kind, d.Value)
	}
	if !t.IsZero() {
		_ = c.SetTip(t.Kind, t.Value)
	}
}

// Compute prices lines under the active policies.
func (c *Calculator) Compute(lines []cart.Line) Breakdown {
	return Compute(lines, c.discount, c.tip)
}

// TipPercentage returns the tip percentage when the tip is percentage based.
func (c *Calculator) TipPercentage() (decimal.Decimal, bool) {
	if c.tip.Kind != enum.TipKindPercentage {
		return decimal.Zero, false
	}
	return c.tip.Value, true
}
