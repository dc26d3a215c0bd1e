// Package handler exposes the directory over HTTP: the public /api/ibiz
// read routes and the bearer-protected /api/admin routes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/accelerator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/cache"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/query"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/reload"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/resilience"
)

// Snapshots is satisfied by *store.Store.
type Snapshots interface {
	Get(ctx context.Context) (*index.Index, error)
	Status() store.Status
}

// Accelerator is satisfied by *accelerator.Client.
type Accelerator interface {
	Available() bool
	BreakerState() resilience.State
	Search(ctx context.Context, p accelerator.SearchParams) (*query.SearchResponse, error)
	Suggest(ctx context.Context, q, regionRaw string, limit int, icons map[string]string) (*query.SuggestResponse, error)
	ReindexFile(ctx context.Context, path string, n *region.Normalizer) (accelerator.ReindexResult, error)
}

// Deps are the collaborators of a Handler. Cache, Reload, Accelerator,
// Logo and Collector are optional.
type Deps struct {
	Engine        *query.Engine
	Snapshots     Snapshots
	Normalizer    *region.Normalizer
	Icons         map[string]string
	Cache         *cache.ResponseCache
	Reload        *reload.Coordinator
	Accelerator   Accelerator
	Logo          http.Handler
	Collector     *analytics.Collector
	MaxSummaryIDs int
	ExportMaxRows int
}

type Handler struct {
	engine     *query.Engine
	snapshots  Snapshots
	normalizer *region.Normalizer
	icons      map[string]string
	cache      *cache.ResponseCache
	reload     *reload.Coordinator
	accel      Accelerator
	logo       http.Handler
	collector  *analytics.Collector
	maxIDs     int
	exportMax  int
	logger     *slog.Logger
}

func New(d Deps) *Handler {
	if d.MaxSummaryIDs <= 0 {
		d.MaxSummaryIDs = 200
	}
	if d.ExportMaxRows <= 0 {
		d.ExportMaxRows = 5000
	}
	if d.Normalizer == nil {
		d.Normalizer = region.Default()
	}
	return &Handler{
		engine:     d.Engine,
		snapshots:  d.Snapshots,
		normalizer: d.Normalizer,
		icons:      d.Icons,
		cache:      d.Cache,
		reload:     d.Reload,
		accel:      d.Accelerator,
		logo:       d.Logo,
		collector:  d.Collector,
		maxIDs:     d.MaxSummaryIDs,
		exportMax:  d.ExportMaxRows,
		logger:     slog.Default().With("component", "directory-handler"),
	}
}

// Register mounts every route on mux. public wraps the read routes and
// admin wraps the mutating admin routes; either may be nil.
func (h *Handler) Register(mux *http.ServeMux, public, admin func(http.Handler) http.Handler) {
	wrap := func(mw func(http.Handler) http.Handler, fn http.HandlerFunc) http.Handler {
		if mw == nil {
			return fn
		}
		return mw(fn)
	}

	mux.Handle("GET /api/ibiz/catalog", wrap(public, h.Catalog))
	mux.Handle("GET /api/ibiz/rubric", wrap(public, h.Rubric))
	mux.Handle("GET /api/ibiz/rubric/export", wrap(public, h.Export))
	mux.Handle("GET /api/ibiz/company/{id}", wrap(public, h.Company))
	mux.Handle("GET /api/ibiz/companies", wrap(public, h.Companies))
	mux.Handle("GET /api/ibiz/suggest", wrap(public, h.Suggest))
	mux.Handle("GET /api/ibiz/search", wrap(public, h.Search))
	mux.Handle("GET /api/ibiz/nearby", wrap(public, h.Nearby))
	mux.Handle("GET /api/ibiz/stats", wrap(public, h.Stats))
	if h.logo != nil {
		mux.Handle("GET /api/ibiz/logo", wrap(public, h.logo.ServeHTTP))
	}

	mux.Handle("POST /api/admin/reload", wrap(admin, h.AdminReload))
	mux.Handle("POST /api/admin/reindex", wrap(admin, h.AdminReindex))
	mux.HandleFunc("GET /api/admin/reindex", h.DescribeReindex)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// fail maps err to its status and machine code. Server-side failures are
// logged and their details withheld from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	code := apperrors.KindOf(err).String()
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "op", op, "error", err)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// normalizeParam folds a user-controlled cache key part so that
// equivalent requests share an entry.
func normalizeParam(s string) string {
	return index.Fold(strings.TrimSpace(s))
}

// cached serves op through the response cache. The key carries the index
// sequence and compute runs against that same snapshot, so an entry always
// holds the answer of the sequence it is filed under.
func cached[T any](ctx context.Context, h *Handler, op string, parts []string, compute func(e *query.Engine) (T, error)) (T, bool, error) {
	if h.cache == nil {
		v, err := compute(h.engine)
		return v, false, err
	}
	ix, err := h.snapshots.Get(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	engine := h.engine.At(ix)
	return cache.GetOrCompute(ctx, h.cache, cache.Key(op, ix.Seq, parts...), func() (T, error) {
		return compute(engine)
	})
}
