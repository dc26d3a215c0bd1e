package accelerator

import (
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/record"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
)

// Document is one company as stored in the search engine.
type Document struct {
	ID            string   `json:"id"`
	Source        string   `json:"source"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	About         string   `json:"about"`
	Address       string   `json:"address"`
	City          string   `json:"city"`
	Region        string   `json:"region"`
	Phones        []string `json:"phones"`
	Emails        []string `json:"emails"`
	Websites      []string `json:"websites"`
	LogoURL       string   `json:"logo_url"`
	ContactPerson string   `json:"contact_person"`

	CategorySlugs       []string `json:"category_slugs"`
	CategoryNames       []string `json:"category_names"`
	RubricSlugs         []string `json:"rubric_slugs"`
	RubricNames         []string `json:"rubric_names"`
	PrimaryCategorySlug *string  `json:"primary_category_slug"`
	PrimaryCategoryName *string  `json:"primary_category_name"`
	PrimaryRubricSlug   *string  `json:"primary_rubric_slug"`
	PrimaryRubricName   *string  `json:"primary_rubric_name"`

	Geo *Geo `json:"_geo"`

	WorkHoursStatus *string           `json:"work_hours_status"`
	WorkHoursTime   *string           `json:"work_hours_time"`
	PhonesExt       []record.PhoneExt `json:"phones_ext"`
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewDocument projects a record and its derived region into a Document.
func NewDocument(rec *record.Record, reg region.ID) Document {
	d := Document{
		ID:            rec.SourceID,
		Source:        rec.Source,
		Name:          rec.Name,
		Description:   rec.Description,
		About:         rec.About,
		Address:       rec.Address,
		City:          rec.City,
		Region:        string(reg),
		Phones:        orEmpty(rec.Phones),
		Emails:        orEmpty(rec.Emails),
		Websites:      orEmpty(rec.Websites),
		LogoURL:       record.NormalizeLogoURL(rec.LogoURL),
		ContactPerson: rec.ContactPerson,
		CategorySlugs: make([]string, 0, len(rec.Categories)),
		CategoryNames: make([]string, 0, len(rec.Categories)),
		RubricSlugs:   make([]string, 0, len(rec.Rubrics)),
		RubricNames:   make([]string, 0, len(rec.Rubrics)),
		PhonesExt:     orEmpty(rec.PhonesExt),
	}
	for _, c := range rec.Categories {
		d.CategorySlugs = append(d.CategorySlugs, c.Slug)
		d.CategoryNames = append(d.CategoryNames, c.Name)
	}
	for _, r := range rec.Rubrics {
		d.RubricSlugs = append(d.RubricSlugs, r.Slug)
		d.RubricNames = append(d.RubricNames, r.Name)
	}
	if c := rec.PrimaryCategory(); c != nil {
		d.PrimaryCategorySlug = &c.Slug
		d.PrimaryCategoryName = &c.Name
	}
	if r := rec.PrimaryRubric(); r != nil {
		d.PrimaryRubricSlug = &r.Slug
		d.PrimaryRubricName = &r.Name
	}
	if lat, lng, ok := rec.Coordinates(); ok {
		d.Geo = &Geo{Lat: lat, Lng: lng}
	}
	if s := rec.WorkHours.Status; s != "" {
		d.WorkHoursStatus = &s
	}
	if s := rec.WorkHours.WorkTime; s != "" {
		d.WorkHoursTime = &s
	}
	return d
}

// Summary converts a search hit back into the list projection served by
// the in-memory engine.
func (d *Document) Summary() *index.Summary {
	s := &index.Summary{
		ID:                  d.ID,
		Source:              d.Source,
		Name:                d.Name,
		Address:             d.Address,
		City:                d.City,
		Region:              region.ID(d.Region),
		PhonesExt:           orEmpty(d.PhonesExt),
		Phones:              orEmpty(d.Phones),
		Emails:              orEmpty(d.Emails),
		Websites:            orEmpty(d.Websites),
		Description:         d.Description,
		LogoURL:             d.LogoURL,
		PrimaryCategorySlug: d.PrimaryCategorySlug,
		PrimaryCategoryName: d.PrimaryCategoryName,
		PrimaryRubricSlug:   d.PrimaryRubricSlug,
		PrimaryRubricName:   d.PrimaryRubricName,
	}
	if d.WorkHoursStatus != nil {
		s.WorkHours.Status = *d.WorkHoursStatus
	}
	if d.WorkHoursTime != nil {
		s.WorkHours.WorkTime = *d.WorkHoursTime
	}
	return s
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
