package region

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the YAML form of the normalization cascade.
type Rules struct {
	Version   int        `yaml:"version"`
	Fragments []Fragment `yaml:"fragments"`
	Capital   struct {
		Name          string   `yaml:"name"`
		City          ID       `yaml:"city"`
		Region        ID       `yaml:"region"`
		Patterns      []string `yaml:"patterns"`
		DistrictWords []string `yaml:"districtWords"`
	} `yaml:"capital"`
	Postal struct {
		Pattern  string        `yaml:"pattern"`
		Prefixes map[string]ID `yaml:"prefixes"`
	} `yaml:"postal"`
}

type Fragment struct {
	Fragment string `yaml:"fragment"`
	Region   ID     `yaml:"region"`
}

// Normalizer applies a compiled rule set. It is immutable and safe for
// concurrent use.
type Normalizer struct {
	version         int
	fragments       []Fragment
	capitalName     string
	capitalCity     ID
	capitalRegion   ID
	capitalPatterns []*regexp.Regexp
	districtWords   []string
	postal          *regexp.Regexp
	prefixes        map[string]ID
}

// Default returns the normalizer for the embedded rule set.
func Default() *Normalizer {
	n, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded region rules: %v", err))
	}
	return n
}

// Load reads a rule file from disk; an empty path selects the embedded rules.
func Load(path string) (*Normalizer, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region rules %s: %w", path, err)
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("region rules %s: %w", path, err)
	}
	return n, nil
}

// Parse compiles YAML rules, rejecting unknown region identifiers and
// invalid patterns.
func Parse(data []byte) (*Normalizer, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	n := &Normalizer{
		version:       r.Version,
		capitalName:   strings.ToLower(r.Capital.Name),
		capitalCity:   r.Capital.City,
		capitalRegion: r.Capital.Region,
		prefixes:      make(map[string]ID, len(r.Postal.Prefixes)),
	}
	if n.capitalName == "" {
		return nil, fmt.Errorf("capital.name is required")
	}
	for _, id := range []ID{n.capitalCity, n.capitalRegion} {
		if !id.Known() {
			return nil, fmt.Errorf("unknown capital region %q", id)
		}
	}
	for _, f := range r.Fragments {
		if !f.Region.Known() {
			return nil, fmt.Errorf("fragment %q: unknown region %q", f.Fragment, f.Region)
		}
		n.fragments = append(n.fragments, Fragment{Fragment: strings.ToLower(f.Fragment), Region: f.Region})
	}
	for _, p := range r.Capital.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("capital pattern %q: %w", p, err)
		}
		n.capitalPatterns = append(n.capitalPatterns, re)
	}
	for _, w := range r.Capital.DistrictWords {
		n.districtWords = append(n.districtWords, strings.ToLower(w))
	}
	if r.Postal.Pattern != "" {
		re, err := regexp.Compile(r.Postal.Pattern)
		if err != nil {
			return nil, fmt.Errorf("postal pattern: %w", err)
		}
		n.postal = re
	}
	for prefix, id := range r.Postal.Prefixes {
		if !id.Known() {
			return nil, fmt.Errorf("postal prefix %s: unknown region %q", prefix, id)
		}
		n.prefixes[prefix] = id
	}
	return n, nil
}

// Version is the rule set's declared version.
func (n *Normalizer) Version() int { return n.version }

// Normalize derives the region for a record. The first matching step wins:
// named region, named city, capital district or oblast, postal code, the
// capital name itself. Anything else is Unknown.
func (n *Normalizer) Normalize(city, regionText, address string) ID {
	cityLow := strings.ToLower(city)
	regionLow := strings.ToLower(regionText)
	addressLow := strings.ToLower(address)

	if id, ok := n.fragment(regionLow); ok {
		return id
	}
	if id, ok := n.fragment(cityLow); ok {
		return id
	}
	if n.isCapitalRegion(cityLow, regionLow, addressLow) {
		return n.capitalRegion
	}
	if id, ok := n.FromPostalCode(address); ok {
		return id
	}
	// Any mention of the capital counts, so a company that only references
	// Minsk in passing lands here.
	if strings.Contains(cityLow, n.capitalName) || strings.Contains(regionLow, n.capitalName) {
		return n.capitalCity
	}
	return Unknown
}

// FromPostalCode maps the first recognised six-digit postal code in address.
func (n *Normalizer) FromPostalCode(address string) (ID, bool) {
	if n.postal == nil || address == "" {
		return Unknown, false
	}
	for _, code := range n.postal.FindAllString(address, -1) {
		if len(code) < 3 {
			continue
		}
		if id, ok := n.prefixes[code[:3]]; ok {
			return id, true
		}
	}
	return Unknown, false
}

func (n *Normalizer) fragment(s string) (ID, bool) {
	if s == "" {
		return Unknown, false
	}
	for _, f := range n.fragments {
		if strings.Contains(s, f.Fragment) {
			return f.Region, true
		}
	}
	return Unknown, false
}

func (n *Normalizer) isCapitalRegion(city, regionText, address string) bool {
	for _, s := range []string{city, regionText, address} {
		if s == "" {
			continue
		}
		for _, re := range n.capitalPatterns {
			if re.MatchString(s) {
				return true
			}
		}
	}
	return n.mentionsCapitalDistrict(city) || n.mentionsCapitalDistrict(regionText)
}

func (n *Normalizer) mentionsCapitalDistrict(s string) bool {
	if !strings.Contains(s, n.capitalName) {
		return false
	}
	for _, w := range n.districtWords {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
