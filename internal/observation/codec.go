// Package observation converts a line's modifier selection to and from the
// free-text "observations" annotation the backend stores on each sale,
// kitchen ticket and pre-order line. The backend has no structured modifier
// field, so this text is the only place modifiers survive persistence.
package observation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cafe-pos/register/internal/modifier"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins segments of an encoded annotation.
const Separator = " - "

const (
	extrasPrefix  = "Extras: "
	proteinPrefix = "Proteína: "
	prepPrefix    = "Preparación: "
)

var milkLabels = map[modifier.Milk]string{
	modifier.MilkStandard:    "Leche entera",
	modifier.MilkLactoseFree: "Leche deslactosada",
	modifier.MilkAlmond:      "Leche de almendra",
}

var extraLabels = map[modifier.Extra]string{
	modifier.ExtraBacon:   "Tocino",
	modifier.ExtraEgg:     "Huevo",
	modifier.ExtraHam:     "Jamón",
	modifier.ExtraSausage: "Salchicha",
}

var proteinLabels = map[modifier.Protein]string{
	modifier.ProteinRegular: "Proteína Normal",
	modifier.ProteinIsolate: "Proteína Isolatada",
}

var prepLabels = map[modifier.Prep]string{
	modifier.PrepCold:    "Fría",
	modifier.PrepBlended: "Frappé",
}

// Decoder vocabularies, keyed by folded text (lowercase, no accents).
var (
	milkWords = map[string]modifier.Milk{
		"leche entera":       modifier.MilkStandard,
		"entera":             modifier.MilkStandard,
		"leche normal":       modifier.MilkStandard,
		"standard milk":      modifier.MilkStandard,
		"whole milk":         modifier.MilkStandard,
		"leche deslactosada": modifier.MilkLactoseFree,
		"deslactosada":       modifier.MilkLactoseFree,
		"lactose free":       modifier.MilkLactoseFree,
		"lactose free milk":  modifier.MilkLactoseFree,
		"leche de almendra":  modifier.MilkAlmond,
		"leche almendra":     modifier.MilkAlmond,
		"almendra":           modifier.MilkAlmond,
		"almond":             modifier.MilkAlmond,
		"almond milk":        modifier.MilkAlmond,
	}
	extraWords = map[string]modifier.Extra{
		"tocino":    modifier.ExtraBacon,
		"bacon":     modifier.ExtraBacon,
		"huevo":     modifier.ExtraEgg,
		"egg":       modifier.ExtraEgg,
		"jamon":     modifier.ExtraHam,
		"ham":       modifier.ExtraHam,
		"salchicha": modifier.ExtraSausage,
		"sausage":   modifier.ExtraSausage,
	}
	proteinWords = map[string]modifier.Protein{
		"proteina normal":    modifier.ProteinRegular,
		"normal":             modifier.ProteinRegular,
		"regular":            modifier.ProteinRegular,
		"proteina isolatada": modifier.ProteinIsolate,
		"isolatada":          modifier.ProteinIsolate,
		"proteina aislada":   modifier.ProteinIsolate,
		"aislada":            modifier.ProteinIsolate,
		"isolate":            modifier.ProteinIsolate,
	}
	prepWords = map[string]modifier.Prep{
		"fria":    modifier.PrepCold,
		"frio":    modifier.PrepCold,
		"cold":    modifier.PrepCold,
		"frappe":  modifier.PrepBlended,
		"licuada": modifier.PrepBlended,
		"blended": modifier.PrepBlended,
	}
)

// segmentSplit matches a dash with whitespace on at least one side, so
// hyphenated words ("semi-descremada") stay intact.
var segmentSplit = regexp.MustCompile(`\s+-\s*|\s*-\s+`)

// Encode renders the non-default modifiers of set, followed by note, as one
// annotation. Segment order is fixed: milk, extras, protein, prep, note.
func Encode(set modifier.Set, note string) string {
	s := set.Normalize()
	var parts []string

	if label, ok := milkLabels[s.Milk]; ok {
		parts = append(parts, label)
	}
	if len(s.Extras) > 0 {
		names := make([]string, 0, len(s.Extras))
		for _, e := range s.Extras {
			if label, ok := extraLabels[e]; ok {
				names = append(names, label)
			}
		}
		if len(names) > 0 {
			parts = append(parts, extrasPrefix+strings.Join(names, ", "))
		}
	}
	if label, ok := proteinLabels[s.Protein]; ok {
		parts = append(parts, proteinPrefix+label)
	}
	if label, ok := prepLabels[s.Prep]; ok {
		parts = append(parts, prepPrefix+label)
	}
	if n := strings.TrimSpace(note); n != "" {
		parts = append(parts, n)
	}
	return strings.Join(parts, Separator)
}

// Decode parses an annotation back into a modifier set and the free-text
// remainder. Every segment is recognized on its own; unknown segments are kept
// verbatim in the note. Missing families default to none.
func Decode(text string) (modifier.Set, string) {
	var set modifier.Set
	var rest []string

	for _, raw := range segmentSplit.Split(text, -1) {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}
		if !decodeSegment(seg, &set) {
			rest = append(rest, seg)
		}
	}
	return set.Normalize(), strings.Join(rest, Separator)
}

// decodeSegment applies seg to set and reports whether it was recognized.
func decodeSegment(seg string, set *modifier.Set) bool {
	f := fold(seg)
	label, value, hasValue := strings.Cut(f, ":")
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)

	if hasValue {
		switch label {
		case "extras", "extra", "ingredientes":
			extras, ok := decodeExtras(value)
			if !ok {
				return false
			}
			set.Extras = append(set.Extras, extras...)
			return true
		case "proteina", "protein":
			if p, ok := proteinWords[value]; ok {
				set.Protein = p
				return true
			}
			return false
		case "preparacion", "prep", "preparation":
			if p, ok := prepWords[value]; ok {
				set.Prep = p
				return true
			}
			return false
		case "leche", "milk":
			if value == "entera" || value == "normal" {
				set.Milk = modifier.MilkStandard
				return true
			}
			if m, ok := milkWords[value]; ok {
				set.Milk = m
				return true
			}
			return false
		}
		return false
	}

	if m, ok := milkWords[f]; ok {
		set.Milk = m
		return true
	}
	if strings.HasPrefix(f, "proteina ") {
		if p, ok := proteinWords[f]; ok {
			set.Protein = p
			return true
		}
	}
	return false
}

// decodeExtras parses a comma separated extras list. It fails when any entry
// is unknown so the whole segment is preserved in the note.
func decodeExtras(list string) ([]modifier.Extra, bool) {
	var out []modifier.Extra
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		e, ok := extraWords[tok]
		if !ok {
			return nil, false
		}
		out = append(out, e)
	}
	return out, len(out) > 0
}

// fold lowercases s and strips diacritics and surrounding space.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(strings.TrimSpace(out))
	return strings.Join(strings.Fields(strings.ReplaceAll(out, "-", " ")), " ")
}
