// Package region derives a canonical Belarus region from the free-text city,
// region and address fields of a record, and expands region filters through
// the capital alias table.
package region

import "strings"

// ID is a canonical region identifier. The zero value means unknown.
type ID string

const (
	Unknown     ID = ""
	Minsk       ID = "minsk"
	MinskRegion ID = "minsk-region"
	Brest       ID = "brest"
	Vitebsk     ID = "vitebsk"
	Gomel       ID = "gomel"
	Grodno      ID = "grodno"
	Mogilev     ID = "mogilev"
)

// All lists the known regions in display order.
var All = []ID{Minsk, MinskRegion, Brest, Vitebsk, Gomel, Grodno, Mogilev}

var names = map[ID]string{
	Minsk:       "Минск",
	MinskRegion: "Минская область",
	Brest:       "Брестская область",
	Vitebsk:     "Витебская область",
	Gomel:       "Гомельская область",
	Grodno:      "Гродненская область",
	Mogilev:     "Могилёвская область",
}

// aliases makes the capital and its surrounding region mutually inclusive.
var aliases = map[ID][]ID{
	Minsk:       {Minsk, MinskRegion},
	MinskRegion: {Minsk, MinskRegion},
}

func (id ID) Known() bool {
	_, ok := names[id]
	return ok
}

// Name is the Russian display name, or "" for unknown.
func (id ID) Name() string {
	return names[id]
}

// Expand returns the region keys a filter on id covers.
func Expand(id ID) []ID {
	if a, ok := aliases[id]; ok {
		return a
	}
	return []ID{id}
}

// Filter is a parsed region query parameter. The zero Filter matches every
// company, including those with unknown region.
type Filter struct {
	raw  ID
	keys []ID
}

// ParseFilter builds a Filter from a query value. An unrecognised value is
// kept as-is and simply matches nothing.
func ParseFilter(raw string) Filter {
	v := ID(strings.TrimSpace(raw))
	if v == Unknown {
		return Filter{}
	}
	return Filter{raw: v, keys: Expand(v)}
}

// Active reports whether the filter restricts results.
func (f Filter) Active() bool { return f.raw != Unknown }

// Value is the region as supplied by the caller.
func (f Filter) Value() ID { return f.raw }

// Keys returns the alias-expanded region keys, nil when inactive.
func (f Filter) Keys() []ID { return f.keys }

// Match reports whether a company normalized to id passes the filter.
func (f Filter) Match(id ID) bool {
	if !f.Active() {
		return true
	}
	if id == Unknown {
		return false
	}
	for _, k := range f.keys {
		if k == id {
			return true
		}
	}
	return false
}
