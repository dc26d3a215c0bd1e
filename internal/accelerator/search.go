package accelerator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/query"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
)

// SearchParams narrows a search. Offset and Limit are used as given; the
// caller clamps them.
type SearchParams struct {
	Query        string
	Region       string
	CategorySlug string
	RubricSlug   string
	Offset       int
	Limit        int
}

var summaryAttributes = []string{
	"id", "source", "name", "description", "address", "city", "region",
	"phones", "phones_ext", "emails", "websites", "logo_url",
	"primary_category_slug", "primary_category_name",
	"primary_rubric_slug", "primary_rubric_name",
	"work_hours_status", "work_hours_time",
}

var suggestAttributes = []string{
	"id", "name", "address", "city",
	"primary_category_slug", "primary_category_name",
}

// Search runs a full-text query and returns hits as list summaries.
func (c *Client) Search(ctx context.Context, p SearchParams) (*query.SearchResponse, error) {
	res, err := c.search(ctx, "search", p.Query, &meilisearch.SearchRequest{
		Offset:               int64(p.Offset),
		Limit:                int64(p.Limit),
		AttributesToRetrieve: summaryAttributes,
	}, buildFilter(p.Region, p.CategorySlug, p.RubricSlug))
	if err != nil {
		return nil, err
	}
	resp := &query.SearchResponse{Query: p.Query, Total: res.total}
	resp.Companies = make([]*index.Summary, 0, len(res.hits))
	for i := range res.hits {
		resp.Companies = append(resp.Companies, res.hits[i].Summary())
	}
	return resp, nil
}

// Suggest returns company suggestions only; categories and rubrics come from
// the in-memory catalog.
func (c *Client) Suggest(ctx context.Context, q, regionRaw string, limit int, icons map[string]string) (*query.SuggestResponse, error) {
	res, err := c.search(ctx, "suggest", q, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: suggestAttributes,
	}, buildFilter(regionRaw, "", ""))
	if err != nil {
		return nil, err
	}
	resp := &query.SuggestResponse{Query: q, Suggestions: make([]query.Suggestion, 0, len(res.hits))}
	for i := range res.hits {
		resp.Suggestions = append(resp.Suggestions, query.CompanySuggestion(res.hits[i].Summary(), icons))
	}
	return resp, nil
}

type searchResult struct {
	hits  []Document
	total int
}

func (c *Client) search(ctx context.Context, op, q string, req *meilisearch.SearchRequest, filter []any) (searchResult, error) {
	if len(filter) > 0 {
		req.Filter = filter
	}
	var out searchResult
	err := c.call(ctx, op, c.cfg.Timeout, func(ctx context.Context) error {
		res, err := c.index.SearchWithContext(ctx, q, req)
		if err != nil {
			return err
		}
		// Hits arrive as generic maps; one more pass through JSON gives them
		// the document shape.
		raw, err := json.Marshal(res.Hits)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &out.hits); err != nil {
			return fmt.Errorf("decoding hits: %w", err)
		}
		out.total = int(res.EstimatedTotalHits)
		return nil
	})
	return out, err
}

// buildFilter ANDs the given constraints. A region with aliases becomes a
// nested OR group so the capital and its surrounding region match together.
func buildFilter(regionRaw, categorySlug, rubricSlug string) []any {
	var filter []any
	if f := region.ParseFilter(regionRaw); f.Active() {
		keys := f.Keys()
		if len(keys) == 1 {
			filter = append(filter, eq("region", string(keys[0])))
		} else {
			group := make([]string, 0, len(keys))
			for _, k := range keys {
				group = append(group, eq("region", string(k)))
			}
			filter = append(filter, group)
		}
	}
	if categorySlug != "" {
		filter = append(filter, eq("category_slugs", categorySlug))
	}
	if rubricSlug != "" {
		filter = append(filter, eq("rubric_slugs", rubricSlug))
	}
	return filter
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func eq(attr, value string) string {
	return attr + ` = "` + filterEscaper.Replace(value) + `"`
}
