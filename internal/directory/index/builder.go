package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/record"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/tracing"
	"github.com/golang/geo/s2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Options configure a build.
type Options struct {
	Normalizer *region.Normalizer
	SourcePath string
	ModTime    time.Time
	Seq        uint64
	Logger     *slog.Logger
}

// Stats summarises one build.
type Stats struct {
	Lines      int            `json:"lines"`
	Records    int            `json:"records"`
	Duplicates int            `json:"duplicates"`
	Skipped    map[string]int `json:"skipped"`
	Unknown    int            `json:"unknown_region"`
	Duration   time.Duration  `json:"duration_ns"`
}

// Build reads JSONL from r and returns a complete snapshot. Bad lines are
// dropped; only a read error fails the build. Duplicate identifiers keep
// the record from the last line at the position of the first.
func Build(ctx context.Context, r io.Reader, opts Options) (*Index, Stats, error) {
	start := time.Now()
	if opts.Normalizer == nil {
		opts.Normalizer = region.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default().With("component", "index-builder")
	}

	b := newBuilder(opts)

	_, parseSpan := tracing.StartChildSpan(ctx, "index.parse")
	sc := record.NewScanner(r, func(line int, reason record.Skip) {
		log.Debug("skipping line", "line", line, "reason", reason.String())
	})
	for sc.Next() {
		b.add(sc.Record())
	}
	parseSpan.SetAttr("lines", sc.Lines())
	parseSpan.End()
	if err := sc.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("building index from %s: %w", opts.SourcePath, err)
	}

	_, aggSpan := tracing.StartChildSpan(ctx, "index.aggregate")
	ix := b.finish()
	aggSpan.SetAttr("records", ix.Len())
	aggSpan.End()

	stats := Stats{
		Lines:      sc.Lines(),
		Records:    ix.Len(),
		Duplicates: b.duplicates,
		Skipped:    make(map[string]int),
		Unknown:    b.unknown,
		Duration:   time.Since(start),
	}
	for reason, n := range sc.Skipped() {
		stats.Skipped[reason.String()] = n
	}
	return ix, stats, nil
}

type builder struct {
	opts       Options
	ix         *Index
	duplicates int
	unknown    int

	// synthesized holds categories known only from a rubric's category_slug.
	synthesized map[string]bool
}

func newBuilder(opts Options) *builder {
	return &builder{
		opts:        opts,
		synthesized: make(map[string]bool),
		ix: &Index{
			SourcePath:        opts.SourcePath,
			ModTime:           opts.ModTime,
			Seq:               opts.Seq,
			records:           make(map[string]*record.Record),
			summaries:         make(map[string]*Summary),
			regions:           make(map[string]region.ID),
			blobs:             make(map[string]string),
			categories:        make(map[string]record.CategoryRef),
			rubrics:           make(map[string]record.RubricRef),
			rubricsByCategory: make(map[string][]string),
			companiesByRubric: make(map[string][]string),
			companiesByRegion: make(map[region.ID]int),
			categoryTotal:     make(map[string]int),
			categoryByRegion:  make(map[region.ID]map[string]int),
			rubricTotal:       make(map[string]int),
			rubricByRegion:    make(map[region.ID]map[string]int),
		},
	}
}

// add registers descriptors (first seen wins) and stores the record.
func (b *builder) add(rec *record.Record) {
	ix := b.ix
	rec.LogoURL = record.NormalizeLogoURL(rec.LogoURL)

	for _, c := range rec.Categories {
		if c.Slug == "" {
			continue
		}
		b.registerCategory(c, true)
	}
	for _, r := range rec.Rubrics {
		if r.Slug == "" || r.CategorySlug == "" {
			continue
		}
		if _, ok := ix.rubrics[r.Slug]; !ok {
			ix.rubrics[r.Slug] = r
			ix.rubricOrder = append(ix.rubricOrder, r.Slug)
		}
		// Categories are also discovered through the rubrics that name them.
		b.registerCategory(record.CategoryRef{Slug: r.CategorySlug, Name: r.CategoryName}, false)
		if !slices.Contains(ix.rubricsByCategory[r.CategorySlug], r.Slug) {
			ix.rubricsByCategory[r.CategorySlug] = append(ix.rubricsByCategory[r.CategorySlug], r.Slug)
		}
	}

	if _, exists := ix.records[rec.SourceID]; exists {
		b.duplicates++
	} else {
		ix.order = append(ix.order, rec.SourceID)
	}
	ix.records[rec.SourceID] = rec
}

// registerCategory keeps the first descriptor for a slug, except that an
// explicit category reference replaces one synthesized from a rubric. The
// slot in categoryOrder is kept either way.
func (b *builder) registerCategory(c record.CategoryRef, explicit bool) {
	if _, ok := b.ix.categories[c.Slug]; ok {
		if explicit && b.synthesized[c.Slug] {
			b.ix.categories[c.Slug] = c
			delete(b.synthesized, c.Slug)
		}
		return
	}
	b.ix.categories[c.Slug] = c
	b.ix.categoryOrder = append(b.ix.categoryOrder, c.Slug)
	if !explicit {
		b.synthesized[c.Slug] = true
	}
}

// finish derives everything that depends on the surviving records, then
// sorts the catalog.
func (b *builder) finish() *Index {
	ix := b.ix
	for _, id := range ix.order {
		rec := ix.records[id]
		reg := b.opts.Normalizer.Normalize(rec.City, rec.Region, rec.Address)
		ix.regions[id] = reg
		ix.summaries[id] = newSummary(rec, reg)
		ix.blobs[id] = searchBlob(rec)
		if lat, lng, ok := rec.Coordinates(); ok {
			ll := s2.LatLngFromDegrees(lat, lng)
			if ll.IsValid() {
				ix.points = append(ix.points, Point{ID: id, LatLng: ll})
			}
		}

		if reg == region.Unknown {
			b.unknown++
		} else {
			ix.companiesByRegion[reg]++
		}

		// Counters move once per reference; a company is listed under a
		// rubric once however often the record repeats it.
		for _, c := range rec.Categories {
			if c.Slug == "" {
				continue
			}
			bump(ix.categoryTotal, ix.categoryByRegion, reg, c.Slug)
		}

		listed := make(map[string]struct{}, len(rec.Rubrics))
		for _, r := range rec.Rubrics {
			if r.Slug == "" || r.CategorySlug == "" {
				continue
			}
			bump(ix.rubricTotal, ix.rubricByRegion, reg, r.Slug)
			if _, dup := listed[r.Slug]; dup {
				continue
			}
			listed[r.Slug] = struct{}{}
			ix.companiesByRubric[r.Slug] = append(ix.companiesByRubric[r.Slug], id)
		}
	}

	// A collator is not safe for concurrent use; each build owns one.
	col := collate.New(language.Russian, collate.Loose)
	for cat, slugs := range ix.rubricsByCategory {
		slices.SortStableFunc(slugs, func(a, c string) int {
			return col.CompareString(ix.rubrics[a].DisplayName(), ix.rubrics[c].DisplayName())
		})
		ix.rubricsByCategory[cat] = slugs
	}
	ix.sortedCategories = slices.Clone(ix.categoryOrder)
	slices.SortStableFunc(ix.sortedCategories, func(a, c string) int {
		return col.CompareString(ix.categories[a].DisplayName(), ix.categories[c].DisplayName())
	})

	ix.BuiltAt = time.Now()
	return ix
}

func bump(all map[string]int, byRegion map[region.ID]map[string]int, reg region.ID, slug string) {
	all[slug]++
	if reg == region.Unknown {
		return
	}
	m := byRegion[reg]
	if m == nil {
		m = make(map[string]int)
		byRegion[reg] = m
	}
	m[slug]++
}

func newSummary(rec *record.Record, reg region.ID) *Summary {
	s := &Summary{
		ID:          rec.SourceID,
		Source:      rec.Source,
		Name:        rec.Name,
		Address:     rec.Address,
		City:        rec.City,
		Region:      reg,
		WorkHours:   rec.WorkHours,
		PhonesExt:   nonNil(rec.PhonesExt),
		Phones:      nonNil(rec.Phones),
		Emails:      nonNil(rec.Emails),
		Websites:    nonNil(rec.Websites),
		Description: rec.Description,
		LogoURL:     rec.LogoURL,
	}
	if s.Description == "" {
		s.Description = rec.About
	}
	if c := rec.PrimaryCategory(); c != nil {
		s.PrimaryCategorySlug = ptr(c.Slug)
		s.PrimaryCategoryName = ptr(c.Name)
	}
	if r := rec.PrimaryRubric(); r != nil {
		s.PrimaryRubricSlug = ptr(r.Slug)
		s.PrimaryRubricName = ptr(r.Name)
	}
	return s
}

func searchBlob(rec *record.Record) string {
	parts := []string{
		rec.Name,
		rec.Description,
		rec.About,
		rec.Address,
		strings.Join(rec.Phones, " "),
		strings.Join(rec.Emails, " "),
		strings.Join(rec.Websites, " "),
	}
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Fold(strings.Join(kept, " "))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func ptr(s string) *string { return &s }
