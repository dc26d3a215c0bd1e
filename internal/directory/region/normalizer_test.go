package region

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNormalizeCascade walks each step of the cascade and its precedence.
func TestNormalizeCascade(t *testing.T) {
	n := Default()
	tests := []struct {
		name                  string
		city, region, address string
		want                  ID
	}{
		{"region fragment", "", "Брестская обл.", "", Brest},
		{"region beats city", "Гомель", "Витебская область", "", Vitebsk},
		{"city fragment", "г. Гродно", "", "", Grodno},
		{"city mogilev", "Могилёв", "", "", Mogilev},
		{"district in address", "", "", "Минский р-н, д. Копище", MinskRegion},
		{"oblast in region", "", "Минская обл.", "", MinskRegion},
		{"oblast without space", "", "минскаяобласть", "", MinskRegion},
		{"capital with district word in city", "Минск район", "", "", MinskRegion},
		{"postal fallback", "", "", "ул. Ленина 1, 224005", Brest},
		{"postal corrupted prefix", "", "", "274010, Речица", Gomel},
		{"postal second code", "", "", "123456 or 230001", Grodno},
		{"postal unmapped ignored", "Минск", "", "299999", Minsk},
		{"fragment beats postal", "Брест", "", "220000", Brest},
		{"capital city", "г. Минск", "", "", Minsk},
		{"capital region text", "", "Минск", "", Minsk},
		{"unknown", "Лида", "", "ул. Мира 1", Unknown},
		{"empty", "", "", "", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.city, tt.region, tt.address); got != tt.want {
				t.Errorf("Normalize(%q, %q, %q): expected %q, got %q", tt.city, tt.region, tt.address, tt.want, got)
			}
		})
	}
}

// TestPostalFallbackTable verifies every table prefix maps when it is the only signal.
func TestPostalFallbackTable(t *testing.T) {
	n := Default()
	want := map[string]ID{
		"210": Vitebsk, "211": Vitebsk, "212": Mogilev, "213": Mogilev,
		"220": Minsk, "221": MinskRegion, "222": MinskRegion, "223": MinskRegion,
		"224": Brest, "225": Brest, "230": Grodno, "231": Grodno,
		"246": Gomel, "247": Gomel,
		"200": Minsk, "201": Vitebsk, "202": MinskRegion, "215": Minsk,
		"217": Vitebsk, "227": MinskRegion, "232": Minsk, "234": Grodno,
		"236": Gomel, "249": Vitebsk, "264": Gomel, "270": Minsk, "274": Gomel,
	}
	for prefix, region := range want {
		address := "индекс " + prefix + "123, улица"
		if got := n.Normalize("", "", address); got != region {
			t.Errorf("prefix %s: expected %q, got %q", prefix, region, got)
		}
	}
}

func TestPostalRequiresWordBoundary(t *testing.T) {
	n := Default()
	if _, ok := n.FromPostalCode("2240051"); ok {
		t.Error("seven-digit run must not match a postal code")
	}
	if id, ok := n.FromPostalCode("д.5,224005"); !ok || id != Brest {
		t.Errorf("expected brest, got %q %v", id, ok)
	}
}

func TestParseRejectsUnknownRegion(t *testing.T) {
	bad := strings.Replace(string(defaultRules), "region: brest", "region: atlantis", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	custom := strings.Replace(string(defaultRules), "version: 3", "version: 42", 1)
	custom = strings.Replace(custom, `"224": brest`, `"224": grodno`, 1)
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n.Version() != 42 {
		t.Errorf("expected version 42, got %d", n.Version())
	}
	if got := n.Normalize("", "", "224000"); got != Grodno {
		t.Errorf("expected overridden prefix to map to grodno, got %q", got)
	}
}

// TestFilterAliasSymmetry verifies minsk and minsk-region include each other.
func TestFilterAliasSymmetry(t *testing.T) {
	for _, filter := range []string{"minsk", "minsk-region"} {
		f := ParseFilter(filter)
		for _, company := range []ID{Minsk, MinskRegion} {
			if !f.Match(company) {
				t.Errorf("filter %s should include company in %s", filter, company)
			}
		}
		if f.Match(Brest) {
			t.Errorf("filter %s should exclude brest", filter)
		}
		if f.Match(Unknown) {
			t.Errorf("filter %s should exclude unknown region", filter)
		}
	}
}

func TestFilterInactiveAndUnrecognised(t *testing.T) {
	all := ParseFilter("  ")
	if all.Active() || !all.Match(Unknown) || !all.Match(Gomel) {
		t.Error("empty filter should match everything")
	}
	odd := ParseFilter("atlantis")
	if !odd.Active() || odd.Match(Gomel) || odd.Match(Unknown) {
		t.Error("unrecognised filter should match nothing")
	}
	if ParseFilter("gomel").Keys()[0] != Gomel {
		t.Error("non-aliased region should expand to itself")
	}
}
