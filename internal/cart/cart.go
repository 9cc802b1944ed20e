// Package cart holds the register basket: an ordered list of lines, each
// identified by its product, modifier selection and note.
package cart

import (
	"errors"
	"strconv"
	"strings"

	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/observation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by the cart.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrLineNotFound = errors.New("cart line not found")
)

// Product is a catalog product as offered at the register.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Line is one orderable line. UnitPrice excludes modifier surcharges.
// ProductID is nil for a free-text custom item.
type Line struct {
	ID        uuid.UUID       `json:"id"`
	ProductID *int64          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Modifiers modifier.Set    `json:"modifiers"`
	Note      string          `json:"note,omitempty"`
}

// IsCustom reports whether the line is a free-text custom item.
func (l Line) IsCustom() bool {
	return l.ProductID == nil
}

// Identity is the merge key of the line: product, the full modifier
// selection and the note. Custom items are never merged, so their identity
// is the line id.
func (l Line) Identity() string {
	if l.ProductID == nil {
		return "custom:" + l.ID.String()
	}
	key := "product:" + strconv.FormatInt(*l.ProductID, 10) + "|" + l.Modifiers.Key()
	if l.Note != "" {
		key += "|note:" + l.Note
	}
	return key
}

// Observations is the wire annotation for the line's modifiers and note.
func (l Line) Observations() string {
	return observation.Encode(l.Modifiers, l.Note)
}

// UnitSurcharge is the per-unit modifier surcharge.
func (l Line) UnitSurcharge() decimal.Decimal {
	return l.Modifiers.UnitSurcharge()
}

// Subtotal is (unit price + surcharge) x quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Add(l.UnitSurcharge()).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) clone() Line {
	c := l
	if l.ProductID != nil {
		id := *l.ProductID
		c.ProductID = &id
	}
	c.Modifiers = l.Modifiers.Clone()
	return c
}

// Cart is an ordered collection of lines. It is not safe for concurrent use;
// the owning register serializes access.
type Cart struct {
	lines []Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddItem adds one unit of p with mods and no note.
func (c *Cart) AddItem(p Product, mods modifier.Set) Line {
	return c.AddWithNote(p, mods, "")
}

// AddWithNote adds one unit of p with mods and note. A line with the same
// identity gets its quantity incremented; otherwise a new line with quantity
// 1 is appended.
func (c *Cart) AddWithNote(p Product, mods modifier.Set, note string) Line {
	id := p.ID
	candidate := Line{
		ProductID: &id,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		Modifiers: mods.Normalize(),
		Note:      strings.TrimSpace(note),
	}

	key := candidate.Identity()
	for i := range c.lines {
		if c.lines[i].Identity() == key {
			c.lines[i].Quantity++
			return c.lines[i].clone()
		}
	}

	candidate.ID = uuid.New()
	c.lines = append(c.lines, candidate)
	return candidate.clone()
}

// AddCustomItem appends a free-text item. name must be non-blank and price
// strictly positive.
func (c *Cart) AddCustomItem(name string, price decimal.Decimal) (Line, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Line{}, errors.Join(ErrInvalidInput, errors.New("name is required"))
	}
	if !price.IsPositive() {
		return Line{}, errors.Join(ErrInvalidInput, errors.New("price must be > 0"))
	}

	line := Line{
		ID:        uuid.New(),
		Name:      name,
		UnitPrice: price,
		Quantity:  1,
		Modifiers: modifier.Set{}.Normalize(),
	}
	c.lines = append(c.lines, line)
	return line.clone(), nil
}

// UpdateQuantity adds delta to the line's quantity. A resulting quantity of
// zero or less removes the line. The returned bool reports whether the line
// is still present.
func (c *Cart) UpdateQuantity(lineID uuid.UUID, delta int) (bool, error) {
	i := c.index(lineID)
	if i < 0 {
		return false, ErrLineNotFound
	}
	q := c.lines[i].Quantity + delta
	if q <= 0 {
		c.removeAt(i)
		return false, nil
	}
	c.lines[i].Quantity = q
	return true, nil
}

// SetModifiers replaces the modifiers of a product line. If the new identity
// matches another line, the two are merged into that line and the edited line
// disappears. The surviving line is returned.
func (c *Cart) SetModifiers(lineID uuid.UUID, mods modifier.Set) (Line, error) {
	i := c.index(lineID)
	if i < 0 {
		return Line{}, ErrLineNotFound
	}
	if c.lines[i].IsCustom() {
		return Line{}, errors.Join(ErrInvalidInput, errors.New("custom items take no modifiers"))
	}

	c.lines[i].Modifiers = mods.Normalize()
	return c.mergeAt(i), nil
}

// SetNote replaces the free-text note of a line. A product line whose new
// note matches an otherwise identical line is merged into it, as with
// SetModifiers. The surviving line is returned.
func (c *Cart) SetNote(lineID uuid.UUID, note string) (Line, error) {
	i := c.index(lineID)
	if i < 0 {
		return Line{}, ErrLineNotFound
	}
	c.lines[i].Note = strings.TrimSpace(note)
	return c.mergeAt(i), nil
}

// mergeAt folds line i into another line with the same identity, if any.
func (c *Cart) mergeAt(i int) Line {
	key := c.lines[i].Identity()
	for j := range c.lines {
		if j != i && c.lines[j].Identity() == key {
			c.lines[j].Quantity += c.lines[i].Quantity
			merged := c.lines[j].clone()
			c.removeAt(i)
			return merged
		}
	}
	return c.lines[i].clone()
}

// Remove deletes a line.
func (c *Cart) Remove(lineID uuid.UUID) error {
	i := c.index(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.removeAt(i)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

// Load replaces the cart content with lines, used when a persisted order is
// brought back into the register. Lines without an id get one; lines with a
// non-positive quantity are dropped. Lines are kept as given, not merged.
func (c *Cart) Load(lines []Line) {
	c.lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		l = l.clone()
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.Modifiers = l.Modifiers.Normalize()
		c.lines = append(c.lines, l)
	}
}

// Find returns a copy of the line with the given id.
func (c *Cart) Find(lineID uuid.UUID) (Line, bool) {
	i := c.index(lineID)
	if i < 0 {
		return Line{}, false
	}
	return c.lines[i].clone(), true
}

// Snapshot returns a deep copy of the lines in order.
func (c *Cart) Snapshot() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.clone()
	}
	return out
}

// Len is the number of lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) index(lineID uuid.UUID) int {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
}
