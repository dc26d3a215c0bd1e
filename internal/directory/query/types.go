package query

import (
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/record"
)

type CatalogResponse struct {
	Stats      CatalogStats      `json:"stats"`
	Categories []CatalogCategory `json:"categories"`
}

type CatalogStats struct {
	CompaniesTotal  int     `json:"companies_total"`
	CategoriesTotal int     `json:"categories_total"`
	RubricsTotal    int     `json:"rubrics_total"`
	UpdatedAt       *string `json:"updated_at"`
	SourcePath      *string `json:"source_path"`
}

type CatalogCategory struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	URL          string          `json:"url"`
	Icon         *string         `json:"icon"`
	CompanyCount int             `json:"company_count"`
	Rubrics      []CatalogRubric `json:"rubrics"`
}

type CatalogRubric struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type RubricResponse struct {
	Rubric    RubricInfo       `json:"rubric"`
	Companies []*index.Summary `json:"companies"`
	Page      Page             `json:"page"`
}

type RubricInfo struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	CategorySlug string `json:"category_slug"`
	CategoryName string `json:"category_name"`
	Count        int    `json:"count"`
}

type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type CompanyResponse struct {
	Company *record.Record `json:"company"`
	Primary Primary        `json:"primary"`
}

type Primary struct {
	CategorySlug *string `json:"category_slug"`
	RubricSlug   *string `json:"rubric_slug"`
}

// Suggestion types.
const (
	SuggestCategory = "category"
	SuggestRubric   = "rubric"
	SuggestCompany  = "company"
)

// Suggestion is one autocomplete entry. Category and rubric entries carry
// Slug and Count; company entries carry ID and Subtitle.
type Suggestion struct {
	Type         string  `json:"type"`
	Slug         string  `json:"slug,omitempty"`
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	Icon         *string `json:"icon"`
	CategoryName *string `json:"category_name,omitempty"`
	Count        *int    `json:"count,omitempty"`
	Subtitle     *string `json:"subtitle,omitempty"`
}

type SuggestResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
}

type SearchResponse struct {
	Query     string           `json:"query"`
	Total     int              `json:"total"`
	Companies []*index.Summary `json:"companies"`
}

// NearbyCompany is a summary annotated with its distance from the query point.
type NearbyCompany struct {
	*index.Summary
	DistanceKm float64 `json:"distance_km"`
}

type NearbyResponse struct {
	Lat       float64         `json:"lat"`
	Lng       float64         `json:"lng"`
	RadiusKm  float64         `json:"radius_km"`
	Total     int             `json:"total"`
	Companies []NearbyCompany `json:"companies"`
}
