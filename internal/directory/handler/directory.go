package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/accelerator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/middleware"
)

// dashes are stripped from a company id when the exact id is unknown;
// source slugs are often pasted with typographic dashes.
const dashes = "-‐‑‒–—―"

// parseInt reads a leading optional sign and digits, ignoring anything after
// them. When no digits are present def is returned.
func parseInt(s string, def int) int {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return def
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) track(r *http.Request, ev analytics.QueryEvent, start time.Time) {
	if h.collector == nil {
		return
	}
	ev.LatencyMs = time.Since(start).Milliseconds()
	ev.RequestID = middleware.GetRequestID(r)
	h.collector.Track(ev)
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	regionRaw := r.URL.Query().Get("region")

	resp, hit, err := cached(r.Context(), h, "catalog", []string{normalizeParam(regionRaw)}, func(e *query.Engine) (*query.CatalogResponse, error) {
		return e.GetCatalog(r.Context(), regionRaw)
	})
	if err != nil {
		h.fail(w, r, "catalog", err)
		return
	}
	h.track(r, analytics.QueryEvent{
		Op:       analytics.OpCatalog,
		Region:   regionRaw,
		Total:    resp.Stats.CompaniesTotal,
		Returned: len(resp.Categories),
		CacheHit: hit,
	}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rubric(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	slug := strings.TrimSpace(q.Get("slug"))
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "missing_slug", "query parameter 'slug' is required")
		return
	}
	regionRaw, text := q.Get("region"), q.Get("q")
	limits := h.engine.Limits()
	offset := query.Offset(parseInt(q.Get("offset"), 0))
	limit := limits.Page(parseInt(q.Get("limit"), limits.DefaultLimit))

	parts := []string{slug, normalizeParam(regionRaw), normalizeParam(text), strconv.Itoa(offset), strconv.Itoa(limit)}
	resp, hit, err := cached(r.Context(), h, "rubric", parts, func(e *query.Engine) (*query.RubricResponse, error) {
		return e.GetRubricCompanies(r.Context(), slug, regionRaw, text, offset, limit)
	})
	if err != nil {
		h.fail(w, r, "rubric", err)
		return
	}
	h.track(r, analytics.QueryEvent{
		Op:       analytics.OpRubric,
		Query:    text,
		Region:   regionRaw,
		Total:    resp.Page.Total,
		Returned: len(resp.Companies),
		CacheHit: hit,
	}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Company(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing_id", "company id is required")
		return
	}

	resp, err := h.engine.GetCompany(r.Context(), id)
	if apperrors.KindOf(err) == apperrors.KindCompanyNotFound {
		stripped := strings.Map(func(c rune) rune {
			if strings.ContainsRune(dashes, c) {
				return -1
			}
			return c
		}, id)
		if stripped != id && stripped != "" {
			resp, err = h.engine.GetCompany(r.Context(), stripped)
		}
	}
	if err != nil {
		h.fail(w, r, "company", err)
		return
	}
	h.track(r, analytics.QueryEvent{Op: analytics.OpCompany, Total: 1, Returned: 1}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Companies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		h.writeJSON(w, http.StatusOK, map[string]any{"companies": []*index.Summary{}})
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
		if len(ids) == h.maxIDs {
			break
		}
	}

	companies, err := h.engine.GetCompaniesSummary(r.Context(), ids)
	if err != nil {
		h.fail(w, r, "companies", err)
		return
	}
	h.track(r, analytics.QueryEvent{Op: analytics.OpCompanies, Total: len(ids), Returned: len(companies)}, start)
	h.writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

// Suggest answers from the core index. While the accelerator is available
// its typo-tolerant company matches replace the core's company entries;
// categories and rubrics always come from the core.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	q := r.URL.Query()
	text, regionRaw := q.Get("q"), q.Get("region")
	limits := h.engine.Limits()
	limit := limits.Suggestions(parseInt(q.Get("limit"), limits.SuggestLimit))

	parts := []string{normalizeParam(text), normalizeParam(regionRaw), strconv.Itoa(limit)}
	resp, hit, err := cached(ctx, h, "suggest", parts, func(e *query.Engine) (*query.SuggestResponse, error) {
		return e.Suggest(ctx, text, regionRaw, limit)
	})
	if err != nil {
		h.fail(w, r, "suggest", err)
		return
	}

	accelerated := false
	if h.accel != nil && h.accel.Available() && len([]rune(strings.TrimSpace(text))) >= 2 {
		merged, ok := h.mergeSuggestions(r, resp, text, regionRaw, limit)
		if ok {
			resp, accelerated = merged, true
		}
	}
	h.track(r, analytics.QueryEvent{
		Op:          analytics.OpSuggest,
		Query:       text,
		Region:      regionRaw,
		Total:       len(resp.Suggestions),
		Returned:    len(resp.Suggestions),
		CacheHit:    hit,
		Accelerated: accelerated,
	}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) mergeSuggestions(r *http.Request, core *query.SuggestResponse, text, regionRaw string, limit int) (*query.SuggestResponse, bool) {
	out := &query.SuggestResponse{Query: core.Query, Suggestions: make([]query.Suggestion, 0, limit)}
	for _, s := range core.Suggestions {
		if s.Type != query.SuggestCompany {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	room := limit - len(out.Suggestions)
	if room <= 0 {
		return core, false
	}
	companies, err := h.accel.Suggest(r.Context(), text, regionRaw, room, h.icons)
	if err != nil {
		logger.FromContext(r.Context()).Warn("accelerator suggest failed, using core", "error", err)
		return core, false
	}
	out.Suggestions = append(out.Suggestions, companies.Suggestions...)
	if len(out.Suggestions) > limit {
		out.Suggestions = out.Suggestions[:limit]
	}
	return out, true
}

// Search prefers the accelerator and falls back to the core scan on any
// accelerator failure.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	q := r.URL.Query()
	text, regionRaw := q.Get("q"), q.Get("region")
	limits := h.engine.Limits()
	offset := query.Offset(parseInt(q.Get("offset"), 0))
	limit := limits.Page(parseInt(q.Get("limit"), limits.DefaultLimit))

	var (
		resp        *query.SearchResponse
		hit         bool
		accelerated bool
		err         error
	)
	if h.accel != nil && strings.TrimSpace(text) != "" && h.accel.Available() {
		resp, err = h.accel.Search(ctx, accelerator.SearchParams{
			Query:  text,
			Region: regionRaw,
			Offset: offset,
			Limit:  limit,
		})
		if err == nil {
			accelerated = true
		} else {
			logger.FromContext(ctx).Warn("accelerator search failed, using core", "query", text, "error", err)
		}
	}
	if !accelerated {
		parts := []string{normalizeParam(text), normalizeParam(regionRaw), strconv.Itoa(offset), strconv.Itoa(limit)}
		resp, hit, err = cached(ctx, h, "search", parts, func(e *query.Engine) (*query.SearchResponse, error) {
			return e.Search(ctx, text, regionRaw, offset, limit)
		})
		if err != nil {
			h.fail(w, r, "search", err)
			return
		}
	}
	h.track(r, analytics.QueryEvent{
		Op:          analytics.OpSearch,
		Query:       text,
		Region:      regionRaw,
		Total:       resp.Total,
		Returned:    len(resp.Companies),
		CacheHit:    hit,
		Accelerated: accelerated,
	}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	if latErr != nil || lngErr != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "lat and lng must be numbers")
		return
	}
	radius := 0.0
	if raw := strings.TrimSpace(q.Get("radius_km")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_input", "radius_km must be a number")
			return
		}
		radius = v
	}
	regionRaw := q.Get("region")
	limit := parseInt(q.Get("limit"), 0)

	resp, err := h.engine.Nearby(r.Context(), lat, lng, radius, regionRaw, limit)
	if err != nil {
		h.fail(w, r, "nearby", err)
		return
	}
	h.track(r, analytics.QueryEvent{
		Op:       analytics.OpNearby,
		Region:   regionRaw,
		Total:    resp.Total,
		Returned: len(resp.Companies),
	}, start)
	h.writeJSON(w, http.StatusOK, resp)
}

// Stats reports the served snapshot, the response cache and the
// accelerator circuit.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	accel := map[string]any{"enabled": h.accel != nil}
	if h.accel != nil {
		accel["circuit"] = h.accel.BreakerState().String()
	}
	stats := map[string]any{
		"index":       h.snapshots.Status(),
		"cache":       h.cache.Stats(),
		"accelerator": accel,
	}
	if h.collector != nil {
		stats["analytics_dropped"] = h.collector.Dropped()
	}
	h.writeJSON(w, http.StatusOK, stats)
}
