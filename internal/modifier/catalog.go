// Package modifier holds the fixed per-line customization options sold at the
// register and the surcharge each one carries.
package modifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Milk is the milk choice for a drink.
type Milk string

const (
	MilkNone        Milk = "none"
	MilkStandard    Milk = "standard"
	MilkLactoseFree Milk = "lactose_free"
	MilkAlmond      Milk = "almond"
)

// Extra is an add-on ingredient. Any number may be selected per line.
type Extra string

const (
	ExtraBacon   Extra = "bacon"
	ExtraEgg     Extra = "egg"
	ExtraHam     Extra = "ham"
	ExtraSausage Extra = "sausage"
)

// Protein is the protein scoop grade.
type Protein string

const (
	ProteinNone    Protein = "none"
	ProteinRegular Protein = "regular"
	ProteinIsolate Protein = "isolate"
)

// Prep is the preparation style. It carries no surcharge.
type Prep string

const (
	PrepNone    Prep = "none"
	PrepCold    Prep = "cold"
	PrepBlended Prep = "blended"
)

// Errors returned by Set.Validate.
var (
	ErrUnknownMilk    = errors.New("unknown milk type")
	ErrUnknownExtra   = errors.New("unknown extra")
	ErrUnknownProtein = errors.New("unknown protein grade")
	ErrUnknownPrep    = errors.New("unknown prep style")
)

// Surcharges per unit. Business constants.
var (
	lactoseFreeSurcharge = decimal.NewFromInt(15)
	almondSurcharge      = decimal.NewFromInt(20)
	extraSurcharge       = decimal.NewFromInt(20)
	regularSurcharge     = decimal.NewFromInt(30)
	isolateSurcharge     = decimal.NewFromInt(35)
)

// extraOrder is the catalog order; normalized extras are sorted by it.
var extraOrder = map[Extra]int{
	ExtraBacon:   0,
	ExtraEgg:     1,
	ExtraHam:     2,
	ExtraSausage: 3,
}

// AllMilks, AllExtras, AllProteins and AllPreps list every option in catalog order.
var (
	AllMilks    = []Milk{MilkNone, MilkStandard, MilkLactoseFree, MilkAlmond}
	AllExtras   = []Extra{ExtraBacon, ExtraEgg, ExtraHam, ExtraSausage}
	AllProteins = []Protein{ProteinNone, ProteinRegular, ProteinIsolate}
	AllPreps    = []Prep{PrepNone, PrepCold, PrepBlended}
)

// Set is the full modifier selection of one cart line.
// The zero value is equivalent to "no modifiers".
type Set struct {
	Milk    Milk    `json:"milk"`
	Extras  []Extra `json:"extras"`
	Protein Protein `json:"protein"`
	Prep    Prep    `json:"prep"`
}

// Normalize returns a copy with empty fields defaulted to none and extras
// de-duplicated and sorted in catalog order. Unknown extras sort last, by name.
func (s Set) Normalize() Set {
	out := Set{
		Milk:    s.Milk,
		Protein: s.Protein,
		Prep:    s.Prep,
	}
	if out.Milk == "" {
		out.Milk = MilkNone
	}
	if out.Protein == "" {
		out.Protein = ProteinNone
	}
	if out.Prep == "" {
		out.Prep = PrepNone
	}

	seen := make(map[Extra]bool, len(s.Extras))
	for _, e := range s.Extras {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out.Extras = append(out.Extras, e)
	}
	sort.SliceStable(out.Extras, func(i, j int) bool {
		oi, iok := extraOrder[out.Extras[i]]
		oj, jok := extraOrder[out.Extras[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return out.Extras[i] < out.Extras[j]
		}
	})
	return out
}

// Validate checks that every field holds a catalog value.
func (s Set) Validate() error {
	n := s.Normalize()
	switch n.Milk {
	case MilkNone, MilkStandard, MilkLactoseFree, MilkAlmond:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMilk, n.Milk)
	}
	for _, e := range n.Extras {
		if _, ok := extraOrder[e]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownExtra, e)
		}
	}
	switch n.Protein {
	case ProteinNone, ProteinRegular, ProteinIsolate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtein, n.Protein)
	}
	switch n.Prep {
	case PrepNone, PrepCold, PrepBlended:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPrep, n.Prep)
	}
	return nil
}

// IsDefault reports whether the set selects nothing.
func (s Set) IsDefault() bool {
	n := s.Normalize()
	return n.Milk == MilkNone && len(n.Extras) == 0 &&
		n.Protein == ProteinNone && n.Prep == PrepNone
}

// HasExtra reports whether e is selected.
func (s Set) HasExtra(e Extra) bool {
	for _, x := range s.Extras {
		if x == e {
			return true
		}
	}
	return false
}

// Equal compares two sets after normalization.
func (s Set) Equal(o Set) bool {
	return s.Key() == o.Key()
}

// Key is the canonical signature of the set, stable under extras reordering.
func (s Set) Key() string {
	n := s.Normalize()
	extras := make([]string, len(n.Extras))
	for i, e := range n.Extras {
		extras[i] = string(e)
	}
	return "milk=" + string(n.Milk) +
		";extras=" + strings.Join(extras, ",") +
		";protein=" + string(n.Protein) +
		";prep=" + string(n.Prep)
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	c := s
	if s.Extras != nil {
		c.Extras = append([]Extra(nil), s.Extras...)
	}
	return c
}

// MilkSurcharge is the per-unit milk surcharge.
func (s Set) MilkSurcharge() decimal.Decimal {
	switch s.Milk {
	case MilkLactoseFree:
		return lactoseFreeSurcharge
	case MilkAlmond:
		return almondSurcharge
	}
	return decimal.Zero
}

// ExtrasSurcharge is the per-unit surcharge of all selected extras.
func (s Set) ExtrasSurcharge() decimal.Decimal {
	n := len(s.Normalize().Extras)
	return extraSurcharge.Mul(decimal.NewFromInt(int64(n)))
}

// ProteinSurcharge is the per-unit protein surcharge.
func (s Set) ProteinSurcharge() decimal.Decimal {
	switch s.Protein {
	case ProteinRegular:
		return regularSurcharge
	case ProteinIsolate:
		return isolateSurcharge
	}
	return decimal.Zero
}

// UnitSurcharge is the per-unit sum of all surcharges.
func (s Set) UnitSurcharge() decimal.Decimal {
	return s.MilkSurcharge().Add(s.ExtrasSurcharge()).Add(s.ProteinSurcharge())
}

// Option is one selectable catalog entry as shown on the register.
type Option struct {
	Family    string          `json:"family"`
	Value     string          `json:"value"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// Catalog lists every option with its per-unit surcharge.
func Catalog() []Option {
	var out []Option
	for _, m := range AllMilks {
		out = append(out, Option{Family: "milk", Value: string(m), Surcharge: Set{Milk: m}.MilkSurcharge()})
	}
	for _, e := range AllExtras {
		out = append(out, Option{Family: "extras", Value: string(e), Surcharge: extraSurcharge})
	}
	for _, p := range AllProteins {
		out = append(out, Option{Family: "protein", Value: string(p), Surcharge: Set{Protein: p}.ProteinSurcharge()})
	}
	for _, p := range AllPreps {
		out = append(out, Option{Family: "prep", Value: string(p), Surcharge: decimal.Zero})
	}
	return out
}
