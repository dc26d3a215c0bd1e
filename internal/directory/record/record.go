// Package record defines the business-entity record read from the companies
// JSONL file and the line parser that tolerates malformed input.
package record

import "strings"

// Record is one company as exported by the crawler, one JSON object per line.
type Record struct {
	Source        string        `json:"source"`
	SourceID      string        `json:"source_id"`
	SourceURL     string        `json:"source_url"`
	Name          string        `json:"name"`
	UNP           string        `json:"unp"`
	Country       string        `json:"country"`
	Region        string        `json:"region"`
	City          string        `json:"city"`
	Address       string        `json:"address"`
	Phones        []string      `json:"phones"`
	PhonesExt     []PhoneExt    `json:"phones_ext"`
	Emails        []string      `json:"emails"`
	Websites      []string      `json:"websites"`
	Description   string        `json:"description"`
	About         string        `json:"about"`
	ContactPerson string        `json:"contact_person"`
	LogoURL       string        `json:"logo_url"`
	WorkHours     WorkHours     `json:"work_hours"`
	Categories    []CategoryRef `json:"categories"`
	Rubrics       []RubricRef   `json:"rubrics"`
	Extra         Extra         `json:"extra"`
}

type PhoneExt struct {
	Number string   `json:"number"`
	Labels []string `json:"labels"`
}

type WorkHours struct {
	WorkTime  string `json:"work_time,omitempty"`
	BreakTime string `json:"break_time,omitempty"`
	Status    string `json:"status,omitempty"`
}

// CategoryRef is the denormalized category descriptor carried on a record.
type CategoryRef struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RubricRef is the denormalized rubric descriptor. Slug is the full
// "<category>/<rubric>" path.
type RubricRef struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	CategorySlug string `json:"category_slug"`
	CategoryName string `json:"category_name"`
}

type Extra struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Coordinates returns the record's position when both coordinates are set.
// Zero values are treated as missing, as the crawler writes 0 for unknowns.
func (r *Record) Coordinates() (lat, lng float64, ok bool) {
	if r.Extra.Lat == nil || r.Extra.Lng == nil {
		return 0, 0, false
	}
	if *r.Extra.Lat == 0 || *r.Extra.Lng == 0 {
		return 0, 0, false
	}
	return *r.Extra.Lat, *r.Extra.Lng, true
}

// PrimaryCategory returns the first category reference, if any.
func (r *Record) PrimaryCategory() *CategoryRef {
	if len(r.Categories) == 0 {
		return nil
	}
	return &r.Categories[0]
}

// PrimaryRubric returns the first rubric reference, if any.
func (r *Record) PrimaryRubric() *RubricRef {
	if len(r.Rubrics) == 0 {
		return nil
	}
	return &r.Rubrics[0]
}

// DisplayName is the rubric name, or its slug when the name is blank.
func (r RubricRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Slug
}

// DisplayCategoryName is the owning category name, or its slug.
func (r RubricRef) DisplayCategoryName() string {
	if r.CategoryName != "" {
		return r.CategoryName
	}
	return r.CategorySlug
}

// LocalPath is the rubric slug without its leading category segment,
// as used in catalog URLs.
func (r RubricRef) LocalPath() string {
	if i := strings.IndexByte(r.Slug, '/'); i >= 0 {
		return r.Slug[i+1:]
	}
	return ""
}

func (c CategoryRef) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Slug
}

var placeholderLogoSuffixes = []string{"/images/icons/og-icon.png"}

var placeholderLogoFragments = []string{"/images/logo/no-logo", "/images/logo/no_logo"}

// NormalizeLogoURL trims raw and blanks out the site's "no logo" placeholders.
func NormalizeLogoURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	low := strings.ToLower(url)
	for _, s := range placeholderLogoSuffixes {
		if strings.HasSuffix(low, s) {
			return ""
		}
	}
	for _, f := range placeholderLogoFragments {
		if strings.Contains(low, f) {
			return ""
		}
	}
	return url
}
