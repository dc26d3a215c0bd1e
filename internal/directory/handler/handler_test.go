package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/accelerator"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/cache"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/query"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/reload"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/store"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/resilience"
	"github.com/xuri/excelize/v2"
)

const fixture = `{"source_id":"acme1","name":"Кафе Акме","city":"Минск","address":"пр. Независимости 1","categories":[{"slug":"food","name":"Еда"}],"rubrics":[{"slug":"food/cafe","name":"Кафе","category_slug":"food","category_name":"Еда"}],"extra":{"lat":53.9,"lng":27.56}}
{"source_id":"beta","name":"Бета Шины","city":"Брест","categories":[{"slug":"auto","name":"Авто"}],"rubrics":[{"slug":"auto/tires","name":"Шиномонтаж","category_slug":"auto","category_name":"Авто"}]}
{"source_id":"gamma","name":"Кафе Гамма","city":"Гомель","categories":[{"slug":"food","name":"Еда"}],"rubrics":[{"slug":"food/cafe","name":"Кафе","category_slug":"food","category_name":"Еда"}],"extra":{"lat":52.43,"lng":30.99}}
`

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	return nil
}

func (m *memKV) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type fakeAccel struct {
	available  bool
	searchErr  error
	reindexErr error
	searched   int
	reindexed  string
}

func (f *fakeAccel) Available() bool { return f.available }
func (f *fakeAccel) BreakerState() resilience.State { return resilience.StateClosed }

func (f *fakeAccel) Search(_ context.Context, p accelerator.SearchParams) (*query.SearchResponse, error) {
	f.searched++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &query.SearchResponse{Query: p.Query, Total: 99, Companies: []*index.Summary{{ID: "remote", Name: "Remote"}}}, nil
}

func (f *fakeAccel) Suggest(_ context.Context, q, _ string, limit int, _ map[string]string) (*query.SuggestResponse, error) {
	return &query.SuggestResponse{Query: q, Suggestions: []query.Suggestion{{Type: "company", ID: "remote", Name: "Remote", URL: "/company/remote"}}}, nil
}

func (f *fakeAccel) ReindexFile(_ context.Context, path string, _ *region.Normalizer) (accelerator.ReindexResult, error) {
	f.reindexed = path
	if f.reindexErr != nil {
		return accelerator.ReindexResult{}, f.reindexErr
	}
	return accelerator.ReindexResult{Total: 3, Indexed: 3, Batches: 1}, nil
}

type env struct {
	mux   *http.ServeMux
	store *store.Store
	kv    *memKV
	agg   *analytics.Aggregator
	coll  *analytics.Collector
	path  string
}

func newEnv(t *testing.T, accel Accelerator) *env {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "companies.jsonl")
	if err := os.WriteFile(src, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	st := store.New(store.Options{BaseDir: dir, Candidates: []string{"companies.jsonl"}})
	kv := &memKV{data: map[string]string{}}
	rc := cache.New(kv, time.Minute, nil)
	agg := analytics.NewAggregator()
	coll := analytics.NewCollector(nil, agg, analytics.CollectorConfig{BufferSize: 100})
	coll.Start(context.Background())
	t.Cleanup(coll.Close)

	deps := Deps{
		Engine:    query.New(st, map[string]string{"food": "utensils"}, query.DefaultLimits(), nil),
		Snapshots: st,
		Cache:     rc,
		Reload: reload.NewCoordinator("test", nil,
			reload.InvalidatorFunc(func(context.Context) error { st.Invalidate(); return nil }),
			rc,
		),
		Collector:     coll,
		MaxSummaryIDs: 2,
	}
	if accel != nil {
		deps.Accelerator = accel
	}
	mux := http.NewServeMux()
	New(deps).Register(mux, nil, nil)
	return &env{mux: mux, store: st, kv: kv, agg: agg, coll: coll, path: src}
}

func (e *env) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestParseInt(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"", 24, 24},
		{"abc", 24, 24},
		{"12", 24, 12},
		{" 7px", 24, 7},
		{"-3", 0, -3},
		{"+5", 0, 5},
		{"-", 8, 8},
		{"1.9", 0, 1},
	}
	for _, tc := range cases {
		if got := parseInt(tc.in, tc.def); got != tc.want {
			t.Errorf("parseInt(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestCatalogIsCachedPerSnapshot(t *testing.T) {
	e := newEnv(t, nil)

	first := e.do(t, "GET", "/api/ibiz/catalog")
	if first.Code != 200 {
		t.Fatalf("catalog: %d %s", first.Code, first.Body.String())
	}
	cat := decode[query.CatalogResponse](t, first)
	if cat.Stats.CompaniesTotal != 3 || len(cat.Categories) != 2 {
		t.Errorf("unexpected catalog %+v", cat.Stats)
	}
	e.do(t, "GET", "/api/ibiz/catalog")

	rel := e.do(t, "POST", "/api/admin/reload")
	if rel.Code != 200 {
		t.Fatalf("reload: %d %s", rel.Code, rel.Body.String())
	}
	if len(e.kv.data) != 0 {
		t.Errorf("reload must flush the response cache, %d keys left", len(e.kv.data))
	}
	e.do(t, "GET", "/api/ibiz/catalog")
	e.coll.Close()

	s := e.agg.Stats()
	if s.ByOp["catalog"] != 3 || s.CacheHits != 1 {
		t.Errorf("expected 3 catalog events with one cache hit, got %+v", s)
	}
}

func TestRubric(t *testing.T) {
	e := newEnv(t, nil)
	cases := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing slug", "/api/ibiz/rubric?slug=%20", 400, "missing_slug"},
		{"unknown", "/api/ibiz/rubric?slug=nope", 404, "rubric_not_found"},
		{"ok", "/api/ibiz/rubric?slug=food/cafe&offset=abc&limit=x", 200, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, "GET", tc.target)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if tc.code != "" {
				if body := decode[map[string]string](t, rec); body["error"] != tc.code {
					t.Errorf("error = %q", body["error"])
				}
				return
			}
			resp := decode[query.RubricResponse](t, rec)
			if resp.Page.Offset != 0 || resp.Page.Limit != 24 || resp.Page.Total != 2 {
				t.Errorf("unparseable paging must fall back to defaults, got %+v", resp.Page)
			}
		})
	}
}

func TestCompanyRetriesWithoutDashes(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, "GET", "/api/ibiz/company/acme%E2%80%931")
	if rec.Code != 200 {
		t.Fatalf("dash retry: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[query.CompanyResponse](t, rec); resp.Company.SourceID != "acme1" {
		t.Errorf("got %+v", resp.Company)
	}

	rec = e.do(t, "GET", "/api/ibiz/company/missing-id")
	if rec.Code != 404 || decode[map[string]string](t, rec)["error"] != "company_not_found" {
		t.Errorf("unknown company: %d", rec.Code)
	}
}

func TestCompaniesCapsIDs(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, "GET", "/api/ibiz/companies?ids=%20,beta,,acme1,gamma")
	resp := decode[map[string][]index.Summary](t, rec)
	if len(resp["companies"]) != 2 || resp["companies"][0].ID != "beta" {
		t.Errorf("expected first two non-blank ids, got %+v", resp["companies"])
	}

	rec = e.do(t, "GET", "/api/ibiz/companies")
	if strings.TrimSpace(rec.Body.String()) != `{"companies":[]}` {
		t.Errorf("empty ids: %s", rec.Body.String())
	}
}

func TestSearchPrefersAccelerator(t *testing.T) {
	accel := &fakeAccel{available: true}
	e := newEnv(t, accel)

	resp := decode[query.SearchResponse](t, e.do(t, "GET", "/api/ibiz/search?q=кафе"))
	if resp.Total != 99 || resp.Companies[0].ID != "remote" {
		t.Errorf("expected accelerator results, got %+v", resp)
	}

	accel.searchErr = errors.New("meili down")
	resp = decode[query.SearchResponse](t, e.do(t, "GET", "/api/ibiz/search?q=кафе"))
	if resp.Total != 2 {
		t.Errorf("expected core fallback with 2 matches, got %+v", resp)
	}

	accel.available = false
	e.do(t, "GET", "/api/ibiz/search?q=кафе")
	if accel.searched != 2 {
		t.Errorf("open circuit must skip the accelerator, searched=%d", accel.searched)
	}
	e.coll.Close()
	if s := e.agg.Stats(); s.Accelerated != 1 || s.ByOp["search"] != 3 {
		t.Errorf("unexpected analytics %+v", s)
	}
}

func TestSuggestMergesAcceleratorCompanies(t *testing.T) {
	e := newEnv(t, &fakeAccel{available: true})

	resp := decode[query.SuggestResponse](t, e.do(t, "GET", "/api/ibiz/suggest?q=кафе"))
	var types []string
	for _, s := range resp.Suggestions {
		types = append(types, s.Type+":"+s.Name)
	}
	got := strings.Join(types, ",")
	if !strings.HasSuffix(got, "company:Remote") || strings.Contains(got, "Кафе Акме") {
		t.Errorf("company suggestions should come from the accelerator, got %s", got)
	}
	if !strings.Contains(got, "rubric:") {
		t.Errorf("rubrics must still come from the core, got %s", got)
	}
}

func TestNearby(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, "GET", "/api/ibiz/nearby?lat=53.9&lng=27.56&radius_km=10")
	if rec.Code != 200 {
		t.Fatalf("nearby: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[query.NearbyResponse](t, rec)
	if resp.Total != 1 || resp.Companies[0].ID != "acme1" {
		t.Errorf("unexpected nearby %+v", resp)
	}

	if rec := e.do(t, "GET", "/api/ibiz/nearby?lat=north&lng=1"); rec.Code != 400 {
		t.Errorf("bad lat: %d", rec.Code)
	}
}

func TestReindex(t *testing.T) {
	t.Run("describe", func(t *testing.T) {
		body := decode[map[string]string](t, newEnv(t, nil).do(t, "GET", "/api/admin/reindex"))
		if body["method"] != "POST" || body["endpoint"] != "/api/admin/reindex" {
			t.Errorf("unexpected description %v", body)
		}
	})
	t.Run("disabled", func(t *testing.T) {
		if rec := newEnv(t, nil).do(t, "POST", "/api/admin/reindex"); rec.Code != 503 {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("ok", func(t *testing.T) {
		accel := &fakeAccel{available: true}
		e := newEnv(t, accel)
		rec := e.do(t, "POST", "/api/admin/reindex")
		body := decode[map[string]any](t, rec)
		if rec.Code != 200 || body["success"] != true || body["indexed"] != float64(3) {
			t.Errorf("got %d %v", rec.Code, body)
		}
		if accel.reindexed != e.path {
			t.Errorf("reindexed %q, want %q", accel.reindexed, e.path)
		}
	})
	t.Run("failure", func(t *testing.T) {
		e := newEnv(t, &fakeAccel{reindexErr: errors.New("task failed")})
		rec := e.do(t, "POST", "/api/admin/reindex")
		body := decode[map[string]any](t, rec)
		if rec.Code != 500 || body["error"] != "Indexing failed" || body["message"] != "task failed" {
			t.Errorf("got %d %v", rec.Code, body)
		}
	})
}

func TestExport(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, "GET", "/api/ibiz/rubric/export?slug=food/cafe&region=minsk")
	if rec.Code != 200 {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "food_cafe") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("Companies")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "acme1" {
		t.Errorf("expected header plus the Minsk cafe, got %v", rows)
	}

	if rec := e.do(t, "GET", "/api/ibiz/rubric/export?slug=nope"); rec.Code != 404 {
		t.Errorf("unknown rubric export: %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	e := newEnv(t, &fakeAccel{available: true})
	e.do(t, "GET", "/api/ibiz/catalog")

	body := decode[map[string]json.RawMessage](t, e.do(t, "GET", "/api/ibiz/stats"))
	var status store.Status
	if err := json.Unmarshal(body["index"], &status); err != nil || !status.Loaded || status.Records != 3 {
		t.Errorf("index status %s: %v", body["index"], err)
	}
	if !strings.Contains(string(body["accelerator"]), `"circuit":"closed"`) {
		t.Errorf("accelerator = %s", body["accelerator"])
	}
}

// fixedSnapshots always hands out ix, standing in for a store that rebuilt
// between the handler reading the sequence and the engine answering.
type fixedSnapshots struct{ ix *index.Index }

func (f fixedSnapshots) Get(context.Context) (*index.Index, error) { return f.ix, nil }
func (f fixedSnapshots) Status() store.Status { return store.Status{Loaded: true, Seq: f.ix.Seq} }

func buildAt(t *testing.T, seq uint64, data string) *index.Index {
	t.Helper()
	ix, _, err := index.Build(context.Background(), strings.NewReader(data), index.Options{SourcePath: "mem.jsonl", Seq: seq})
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestCachedEntryMatchesItsSnapshot(t *testing.T) {
	older := buildAt(t, 1, fixture)
	newer := buildAt(t, 2, strings.SplitN(fixture, "\n", 2)[0])
	kv := &memKV{data: map[string]string{}}
	h := New(Deps{
		Engine:    query.New(fixedSnapshots{newer}, nil, query.DefaultLimits(), nil),
		Snapshots: fixedSnapshots{older},
		Cache:     cache.New(kv, time.Minute, nil),
	})
	mux := http.NewServeMux()
	h.Register(mux, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ibiz/catalog", nil))
	if rec.Code != 200 {
		t.Fatalf("catalog: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[query.CatalogResponse](t, rec).Stats.CompaniesTotal; got != 3 {
		t.Errorf("expected the answer of seq 1 (3 companies), got %d", got)
	}

	raw, ok := kv.data[cache.Key("catalog", older.Seq, normalizeParam(""))]
	if !ok {
		t.Fatalf("expected an entry under seq %d, have %d keys", older.Seq, len(kv.data))
	}
	var stored query.CatalogResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Stats.CompaniesTotal != 3 {
		t.Errorf("entry for seq 1 holds %d companies", stored.Stats.CompaniesTotal)
	}
}
