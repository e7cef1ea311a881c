package reconcile

import (
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// synonyms maps spelling variants onto one token. Accents are already
// folded by event.NormalizeName.
var synonyms = map[string]string{
	"entradas":      "entrada",
	"ticket":        "entrada",
	"tickets":       "entrada",
	"promocion":     "promo",
	"promociones":   "promo",
	"reservado":     "reserva",
	"reservados":    "reserva",
	"reservas":      "reserva",
	"copas":         "copa",
	"consumicion":   "copa",
	"consumiciones": "copa",
	"bebida":        "copa",
	"bebidas":       "copa",
	"listas":        "lista",
	"gral":          "general",
	"mesas":         "mesa",
	"botellas":      "botella",
	"anticipadas":   "anticipada",
}

// vocabulary is the set of tokens that carry meaning when comparing
// ticket names by keyword.
var vocabulary = map[string]bool{
	"entrada":    true,
	"vip":        true,
	"copa":       true,
	"promo":      true,
	"reserva":    true,
	"lista":      true,
	"general":    true,
	"anticipada": true,
	"taquilla":   true,
	"mesa":       true,
	"botella":    true,
	"chica":      true,
	"chico":      true,
	"grupo":      true,
	"pack":       true,
	"gratis":     true,
	"acceso":     true,
}

// canonicalName is the normalized name with synonyms substituted.
func canonicalName(name string) string {
	tokens := strings.Fields(event.NormalizeName(name))
	for i, tok := range tokens {
		if syn, ok := synonyms[tok]; ok {
			tokens[i] = syn
		}
	}
	return strings.Join(tokens, " ")
}

// profile is a ticket name reduced to its keywords and embedded counts.
// Numbers followed by a currency sign are prices, not counts.
type profile struct {
	keywords map[string]bool
	counts   map[string]bool
}

func profileOf(name string) profile {
	p := profile{keywords: map[string]bool{}, counts: map[string]bool{}}
	tokens := strings.Fields(canonicalName(name))
	for i, tok := range tokens {
		if vocabulary[tok] {
			p.keywords[tok] = true
			continue
		}
		if isDigits(tok) && (i+1 >= len(tokens) || tokens[i+1] != "€") {
			p.counts[tok] = true
		}
	}
	return p
}

// score returns the number of shared keywords, plus one when both names
// embed an identical count.
func score(a, b profile) (shared int, bonus int) {
	for k := range a.keywords {
		if b.keywords[k] {
			shared++
		}
	}
	for c := range a.counts {
		if b.counts[c] {
			return shared, 1
		}
	}
	return shared, 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
