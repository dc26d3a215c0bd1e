// Package query answers catalog, rubric, company, suggestion, search and
// nearby requests against the current directory index. Every operation is
// read-only.
package query

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
)

// Source yields the index to query. *store.Store satisfies it.
type Source interface {
	Get(ctx context.Context) (*index.Index, error)
}

// Limits bound page and suggestion sizes.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
	SuggestLimit int
	MaxSuggest   int
}

// DefaultLimits are the sizes used by the public site.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: 24, MaxLimit: 200, SuggestLimit: 8, MaxSuggest: 20}
}

// minSuggestRunes is the shortest trimmed query that produces suggestions.
const minSuggestRunes = 2

type Engine struct {
	source  Source
	icons   map[string]string
	limits  Limits
	metrics *metrics.Metrics
}

// New creates an Engine. icons maps category slugs to icon names; metrics
// may be nil.
func New(source Source, icons map[string]string, limits Limits, m *metrics.Metrics) *Engine {
	if limits.DefaultLimit <= 0 {
		limits = DefaultLimits()
	}
	return &Engine{source: source, icons: icons, limits: limits, metrics: m}
}

// At returns a copy of the engine that answers from ix alone, so a result
// can be attributed to the snapshot it was computed from.
func (e *Engine) At(ix *index.Index) *Engine {
	pinned := *e
	pinned.source = snapshot{ix}
	return &pinned
}

type snapshot struct{ ix *index.Index }

func (s snapshot) Get(context.Context) (*index.Index, error) { return s.ix, nil }

// Limits returns the engine's configured sizes.
func (e *Engine) Limits() Limits { return e.limits }

// GetCatalog lists every category, sorted by display name, with its rubrics
// and counts scoped to regionRaw.
func (e *Engine) GetCatalog(ctx context.Context, regionRaw string) (resp *CatalogResponse, err error) {
	defer e.observe("catalog", time.Now(), &err, nil)
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	f := region.ParseFilter(regionRaw)

	categories := make([]CatalogCategory, 0, ix.CategoriesTotal())
	for _, slug := range ix.SortedCategorySlugs() {
		cat, _ := ix.Category(slug)
		rubricSlugs := ix.RubricsOf(slug)
		rubrics := make([]CatalogRubric, 0, len(rubricSlugs))
		for _, rs := range rubricSlugs {
			r, ok := ix.Rubric(rs)
			if !ok {
				continue
			}
			rubrics = append(rubrics, CatalogRubric{
				Slug:  r.Slug,
				Name:  r.DisplayName(),
				URL:   r.URL,
				Count: ix.RubricCount(r.Slug, f),
			})
		}
		categories = append(categories, CatalogCategory{
			Slug:         cat.Slug,
			Name:         cat.DisplayName(),
			URL:          cat.URL,
			Icon:         e.icon(cat.Slug),
			CompanyCount: ix.CategoryCount(cat.Slug, f),
			Rubrics:      rubrics,
		})
	}

	stats := CatalogStats{
		CompaniesTotal:  ix.CompanyCount(f),
		CategoriesTotal: ix.CategoriesTotal(),
		RubricsTotal:    ix.RubricsTotal(),
	}
	if !ix.ModTime.IsZero() {
		ts := ix.ModTime.UTC().Format("2006-01-02T15:04:05.000Z")
		stats.UpdatedAt = &ts
	}
	if ix.SourcePath != "" {
		p := ix.SourcePath
		stats.SourcePath = &p
	}
	return &CatalogResponse{Stats: stats, Categories: categories}, nil
}

// GetRubricCompanies pages through a rubric's companies in load order,
// optionally narrowed by region and a substring of the search text.
func (e *Engine) GetRubricCompanies(ctx context.Context, slug, regionRaw, q string, offset, limit int) (resp *RubricResponse, err error) {
	defer e.observe("rubric", time.Now(), &err, func() bool { return resp.Page.Total == 0 })
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := ix.Rubric(slug)
	if !ok {
		return nil, apperrors.RubricNotFound(slug)
	}
	f := region.ParseFilter(regionRaw)
	needle := foldQuery(q)

	var matched []string
	for _, id := range ix.CompaniesOf(slug) {
		if !f.Match(ix.Region(id)) {
			continue
		}
		if needle != "" && !strings.Contains(ix.Blob(id), needle) {
			continue
		}
		matched = append(matched, id)
	}

	offset = clampOffset(offset)
	limit = e.clampLimit(limit)
	return &RubricResponse{
		Rubric: RubricInfo{
			Slug:         r.Slug,
			Name:         r.DisplayName(),
			URL:          r.URL,
			CategorySlug: r.CategorySlug,
			CategoryName: r.DisplayCategoryName(),
			Count:        ix.RubricCount(r.Slug, f),
		},
		Companies: summaries(ix, page(matched, offset, limit)),
		Page:      Page{Offset: offset, Limit: limit, Total: len(matched)},
	}, nil
}

// RubricMatches returns the identifiers GetRubricCompanies would page
// through, capped at max. Used by the spreadsheet export.
func (e *Engine) RubricMatches(ctx context.Context, slug, regionRaw, q string, max int) (*index.Index, []string, error) {
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := ix.Rubric(slug); !ok {
		return nil, nil, apperrors.RubricNotFound(slug)
	}
	f := region.ParseFilter(regionRaw)
	needle := foldQuery(q)
	var ids []string
	for _, id := range ix.CompaniesOf(slug) {
		if max > 0 && len(ids) >= max {
			break
		}
		if !f.Match(ix.Region(id)) {
			continue
		}
		if needle != "" && !strings.Contains(ix.Blob(id), needle) {
			continue
		}
		ids = append(ids, id)
	}
	return ix, ids, nil
}

// GetCompany looks up one company by exact identifier.
func (e *Engine) GetCompany(ctx context.Context, id string) (resp *CompanyResponse, err error) {
	defer e.observe("company", time.Now(), &err, nil)
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := ix.Record(id)
	if !ok {
		return nil, apperrors.CompanyNotFound(id)
	}
	var primary Primary
	if c := rec.PrimaryCategory(); c != nil {
		slug := c.Slug
		primary.CategorySlug = &slug
	}
	if r := rec.PrimaryRubric(); r != nil {
		slug := r.Slug
		primary.RubricSlug = &slug
	}
	return &CompanyResponse{Company: rec, Primary: primary}, nil
}

// Suggest returns up to limit entries: matching categories, then rubrics,
// then companies while room remains. Queries shorter than two characters
// return nothing.
func (e *Engine) Suggest(ctx context.Context, q, regionRaw string, limit int) (resp *SuggestResponse, err error) {
	defer e.observe("suggest", time.Now(), &err, func() bool { return len(resp.Suggestions) == 0 })
	limit = e.limits.Suggestions(limit)
	resp = &SuggestResponse{Query: q, Suggestions: []Suggestion{}}
	needle := foldQuery(q)
	if utf8.RuneCountInString(needle) < minSuggestRunes {
		return resp, nil
	}
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	f := region.ParseFilter(regionRaw)
	out := resp.Suggestions

	for _, slug := range ix.CategorySlugs() {
		if len(out) >= limit {
			break
		}
		cat, _ := ix.Category(slug)
		if !strings.Contains(index.Fold(cat.Name), needle) {
			continue
		}
		count := ix.CategoryCount(slug, f)
		out = append(out, Suggestion{
			Type:  SuggestCategory,
			Slug:  slug,
			Name:  cat.DisplayName(),
			URL:   "/catalog/" + slug,
			Icon:  e.icon(slug),
			Count: &count,
		})
	}

	for _, slug := range ix.RubricSlugs() {
		if len(out) >= limit {
			break
		}
		r, _ := ix.Rubric(slug)
		if !strings.Contains(index.Fold(r.Name), needle) {
			continue
		}
		count := ix.RubricCount(slug, f)
		categoryName := r.DisplayCategoryName()
		out = append(out, Suggestion{
			Type:         SuggestRubric,
			Slug:         slug,
			Name:         r.DisplayName(),
			URL:          "/catalog/" + r.CategorySlug + "/" + r.LocalPath(),
			Icon:         e.icon(r.CategorySlug),
			CategoryName: &categoryName,
			Count:        &count,
		})
	}

	for _, id := range ix.IDs() {
		if len(out) >= limit {
			break
		}
		if !f.Match(ix.Region(id)) || !strings.Contains(ix.Blob(id), needle) {
			continue
		}
		s, _ := ix.Summary(id)
		out = append(out, CompanySuggestion(s, e.icons))
	}

	resp.Suggestions = out
	return resp, nil
}

// CompanySuggestion renders a company as a suggestion entry.
func CompanySuggestion(s *index.Summary, icons map[string]string) Suggestion {
	subtitle := s.Address
	if subtitle == "" {
		subtitle = s.City
	}
	var icon *string
	if s.PrimaryCategorySlug != nil {
		icon = lookupIcon(icons, *s.PrimaryCategorySlug)
	}
	return Suggestion{
		Type:     SuggestCompany,
		ID:       s.ID,
		Name:     s.Name,
		URL:      "/company/" + s.ID,
		Icon:     icon,
		Subtitle: &subtitle,
	}
}

// Search pages through companies whose search text contains q.
func (e *Engine) Search(ctx context.Context, q, regionRaw string, offset, limit int) (resp *SearchResponse, err error) {
	defer e.observe("search", time.Now(), &err, func() bool { return resp.Total == 0 })
	offset = clampOffset(offset)
	limit = e.clampLimit(limit)
	needle := foldQuery(q)
	if needle == "" {
		return &SearchResponse{Query: q, Total: 0, Companies: []*index.Summary{}}, nil
	}
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	f := region.ParseFilter(regionRaw)

	var matched []string
	for _, id := range ix.IDs() {
		if !f.Match(ix.Region(id)) || !strings.Contains(ix.Blob(id), needle) {
			continue
		}
		matched = append(matched, id)
	}
	return &SearchResponse{
		Query:     q,
		Total:     len(matched),
		Companies: summaries(ix, page(matched, offset, limit)),
	}, nil
}

// GetCompaniesSummary returns summaries for ids in request order. Blank or
// unknown identifiers are skipped.
func (e *Engine) GetCompaniesSummary(ctx context.Context, ids []string) (out []*index.Summary, err error) {
	defer e.observe("companies", time.Now(), &err, nil)
	out = []*index.Summary{}
	if len(ids) == 0 {
		return out, nil
	}
	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if s, ok := ix.Summary(id); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (e *Engine) icon(slug string) *string { return lookupIcon(e.icons, slug) }

func lookupIcon(icons map[string]string, slug string) *string {
	if v, ok := icons[slug]; ok && v != "" {
		return &v
	}
	return nil
}

// observe records latency and outcome. empty is consulted only on success.
func (e *Engine) observe(op string, start time.Time, err *error, empty func() bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	switch {
	case *err != nil:
		switch apperrors.KindOf(*err) {
		case apperrors.KindRubricNotFound, apperrors.KindCompanyNotFound:
			result = "not_found"
		case apperrors.KindInvalidInput:
			result = "invalid"
		default:
			result = "error"
		}
	case empty != nil && empty():
		result = "empty"
	}
	e.metrics.QueriesTotal.WithLabelValues(op, result).Inc()
}

func summaries(ix *index.Index, ids []string) []*index.Summary {
	out := make([]*index.Summary, 0, len(ids))
	for _, id := range ids {
		if s, ok := ix.Summary(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func foldQuery(q string) string {
	return index.Fold(strings.TrimSpace(q))
}
