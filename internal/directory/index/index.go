// Package index holds the immutable in-memory snapshot built from one load of
// the companies file, and the builder that produces it.
package index

import (
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/record"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/golang/geo/s2"
	"golang.org/x/text/unicode/norm"
)

// Summary is the list/search projection of a record.
type Summary struct {
	ID                  string            `json:"id"`
	Source              string            `json:"source"`
	Name                string            `json:"name"`
	Address             string            `json:"address"`
	City                string            `json:"city"`
	Region              region.ID         `json:"region"`
	WorkHours           record.WorkHours  `json:"work_hours"`
	PhonesExt           []record.PhoneExt `json:"phones_ext"`
	Phones              []string          `json:"phones"`
	Emails              []string          `json:"emails"`
	Websites            []string          `json:"websites"`
	Description         string            `json:"description"`
	LogoURL             string            `json:"logo_url"`
	PrimaryCategorySlug *string           `json:"primary_category_slug"`
	PrimaryCategoryName *string           `json:"primary_category_name"`
	PrimaryRubricSlug   *string           `json:"primary_rubric_slug"`
	PrimaryRubricName   *string           `json:"primary_rubric_name"`
}

// Point is a company with usable coordinates.
type Point struct {
	ID     string
	LatLng s2.LatLng
}

// Index is a read-only snapshot. Nothing mutates it after Build returns, and
// slices handed out by its accessors must not be modified by callers.
type Index struct {
	SourcePath string
	ModTime    time.Time
	BuiltAt    time.Time
	Seq        uint64

	order     []string
	records   map[string]*record.Record
	summaries map[string]*Summary
	regions   map[string]region.ID
	blobs     map[string]string
	points    []Point

	categories        map[string]record.CategoryRef
	categoryOrder     []string
	sortedCategories  []string
	rubrics           map[string]record.RubricRef
	rubricOrder       []string
	rubricsByCategory map[string][]string
	companiesByRubric map[string][]string

	companiesByRegion map[region.ID]int
	categoryTotal     map[string]int
	categoryByRegion  map[region.ID]map[string]int
	rubricTotal       map[string]int
	rubricByRegion    map[region.ID]map[string]int
}

// Fold lowercases and NFC-normalizes s so that search blobs and queries
// compare consistently.
func Fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Len is the total number of companies.
func (ix *Index) Len() int { return len(ix.records) }

// IDs returns identifiers in first-insertion order.
func (ix *Index) IDs() []string { return ix.order }

func (ix *Index) Record(id string) (*record.Record, bool) {
	r, ok := ix.records[id]
	return r, ok
}

func (ix *Index) Summary(id string) (*Summary, bool) {
	s, ok := ix.summaries[id]
	return s, ok
}

// Region returns the normalized region of a company, Unknown if absent.
func (ix *Index) Region(id string) region.ID { return ix.regions[id] }

// Blob returns the folded search text of a company.
func (ix *Index) Blob(id string) string { return ix.blobs[id] }

// Points returns companies with coordinates in first-insertion order.
func (ix *Index) Points() []Point { return ix.points }

func (ix *Index) Category(slug string) (record.CategoryRef, bool) {
	c, ok := ix.categories[slug]
	return c, ok
}

func (ix *Index) Rubric(slug string) (record.RubricRef, bool) {
	r, ok := ix.rubrics[slug]
	return r, ok
}

// CategorySlugs returns category slugs in first-seen order.
func (ix *Index) CategorySlugs() []string { return ix.categoryOrder }

// SortedCategorySlugs returns category slugs ordered by display name.
func (ix *Index) SortedCategorySlugs() []string { return ix.sortedCategories }

// RubricSlugs returns rubric slugs in first-seen order.
func (ix *Index) RubricSlugs() []string { return ix.rubricOrder }

// RubricsOf returns a category's rubric slugs ordered by display name.
func (ix *Index) RubricsOf(categorySlug string) []string {
	return ix.rubricsByCategory[categorySlug]
}

// CompaniesOf returns the identifiers filed under a rubric, in load order.
func (ix *Index) CompaniesOf(rubricSlug string) []string {
	return ix.companiesByRubric[rubricSlug]
}

func (ix *Index) CategoriesTotal() int { return len(ix.categories) }

func (ix *Index) RubricsTotal() int { return len(ix.rubrics) }

// CompanyCount is the number of companies the filter covers.
func (ix *Index) CompanyCount(f region.Filter) int {
	if !f.Active() {
		return len(ix.records)
	}
	total := 0
	for _, k := range f.Keys() {
		total += ix.companiesByRegion[k]
	}
	return total
}

// RegionCounts returns a copy of the per-region company counters.
func (ix *Index) RegionCounts() map[region.ID]int {
	out := make(map[region.ID]int, len(ix.companiesByRegion))
	for k, v := range ix.companiesByRegion {
		out[k] = v
	}
	return out
}

func (ix *Index) CategoryCount(slug string, f region.Filter) int {
	return scopedCount(ix.categoryTotal, ix.categoryByRegion, slug, f)
}

func (ix *Index) RubricCount(slug string, f region.Filter) int {
	return scopedCount(ix.rubricTotal, ix.rubricByRegion, slug, f)
}

func scopedCount(all map[string]int, byRegion map[region.ID]map[string]int, slug string, f region.Filter) int {
	if !f.Active() {
		return all[slug]
	}
	total := 0
	for _, k := range f.Keys() {
		total += byRegion[k][slug]
	}
	return total
}
