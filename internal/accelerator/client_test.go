package accelerator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/resilience"
)

// fakeMeili records requests and settles every task on its second poll.
type fakeMeili struct {
	mu          sync.Mutex
	nextTask    int64
	polls       map[string]int
	batches     [][]Document
	deletes     int
	settings    *meilisearch.Settings
	lastSearch  map[string]any
	hits        []Document
	failTaskFor string
	failUploads int
	uploads     int
	auth        string
}

func newFakeMeili(t *testing.T) (*fakeMeili, *httptest.Server) {
	t.Helper()
	f := &fakeMeili{polls: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		writeJSON(w, 200, map[string]string{"status": "available"})
	})
	mux.HandleFunc("POST /indexes", func(w http.ResponseWriter, r *http.Request) {
		f.accept(w, "create_index")
	})
	mux.HandleFunc("PATCH /indexes/companies/settings", func(w http.ResponseWriter, r *http.Request) {
		var s meilisearch.Settings
		json.NewDecoder(r.Body).Decode(&s)
		f.mu.Lock()
		f.settings = &s
		f.mu.Unlock()
		f.accept(w, "settings")
	})
	mux.HandleFunc("DELETE /indexes/companies/documents", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deletes++
		f.mu.Unlock()
		f.accept(w, "delete")
	})
	mux.HandleFunc("POST /indexes/companies/documents", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.uploads++
		fail := f.uploads <= f.failUploads
		f.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "disk full", "code": "internal"})
			return
		}
		var docs []Document
		json.NewDecoder(r.Body).Decode(&docs)
		f.mu.Lock()
		f.batches = append(f.batches, docs)
		f.mu.Unlock()
		f.accept(w, "documents")
	})
	mux.HandleFunc("GET /tasks/{uid}", func(w http.ResponseWriter, r *http.Request) {
		uid := r.PathValue("uid")
		f.mu.Lock()
		f.polls[uid]++
		n := f.polls[uid]
		fail := f.failTaskFor == uid
		f.mu.Unlock()
		switch {
		case fail:
			writeJSON(w, 200, map[string]any{"uid": 1, "status": "failed", "error": map[string]string{"code": "index_already_exists", "message": "exists"}})
		case n < 2:
			writeJSON(w, 200, map[string]any{"status": "processing"})
		default:
			writeJSON(w, 200, map[string]any{"status": "succeeded"})
		}
	})
	mux.HandleFunc("POST /indexes/companies/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastSearch = body
		hits := f.hits
		f.mu.Unlock()
		writeJSON(w, 200, map[string]any{"hits": hits, "estimatedTotalHits": 42})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMeili) accept(w http.ResponseWriter, _ string) {
	f.mu.Lock()
	f.nextTask++
	uid := f.nextTask
	f.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]any{"taskUid": uid})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newClient(srv *httptest.Server) *Client {
	return New(Config{
		Host:      srv.URL + "/",
		APIKey:       "master",
		BatchSize:    2,
		TaskInterval: time.Millisecond,
		Upload:       resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
}

func TestHealthSendsKey(t *testing.T) {
	f, srv := newFakeMeili(t)
	if err := newClient(srv).Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.auth != "Bearer master" {
		t.Errorf("Authorization = %q", f.auth)
	}
}

func TestReplaceAllBatches(t *testing.T) {
	f, srv := newFakeMeili(t)
	c := newClient(srv)

	src := strings.Join([]string{
		`{"source_id":"1","name":"А","city":"Брест","categories":[{"slug":"food","name":"Еда"}],"rubrics":[{"slug":"food/cafe","name":"Кафе","category_slug":"food"}],"extra":{"lat":52.1,"lng":23.7}}`,
		`not json`,
		`{"source_id":"2","name":"Б","city":"Минск"}`,
		`{"source_id":"3","name":"В","work_hours":{"status":"Открыто","work_time":"9-18"}}`,
	}, "\n")

	res, err := c.ReplaceAll(context.Background(), strings.NewReader(src), region.Default())
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if res.Total != 3 || res.Indexed != 3 || res.Batches != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.deletes != 1 || f.settings == nil {
		t.Errorf("expected delete and settings, got %d %v", f.deletes, f.settings)
	}
	if len(f.settings.FilterableAttributes) == 0 || f.settings.TypoTolerance == nil || !f.settings.TypoTolerance.Enabled {
		t.Errorf("settings not sent: %+v", f.settings)
	}

	first := f.batches[0][0]
	if first.Region != "brest" || first.Geo == nil || first.Geo.Lat != 52.1 {
		t.Errorf("unexpected document %+v", first)
	}
	if first.PrimaryRubricSlug == nil || *first.PrimaryRubricSlug != "food/cafe" {
		t.Errorf("primary rubric not set: %+v", first)
	}
	if first.Phones == nil {
		t.Error("list fields must not be null")
	}
	third := f.batches[1][0]
	if third.WorkHoursStatus == nil || *third.WorkHoursStatus != "Открыто" {
		t.Errorf("work hours not carried: %+v", third)
	}
}

func TestConfigureIndexToleratesExistingIndex(t *testing.T) {
	f, srv := newFakeMeili(t)
	f.failTaskFor = "1"
	if err := newClient(srv).ConfigureIndex(context.Background(), DefaultSettings()); err != nil {
		t.Fatalf("existing index must not fail configuration: %v", err)
	}
}

func TestSearchExpandsRegionAlias(t *testing.T) {
	f, srv := newFakeMeili(t)
	status := "Открыто"
	f.hits = []Document{{ID: "7", Name: "Кафе", Region: "minsk", WorkHoursStatus: &status}}
	c := newClient(srv)

	resp, err := c.Search(context.Background(), SearchParams{Query: "кафе", Region: "minsk", RubricSlug: "food/cafe", Limit: 24})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 42 || len(resp.Companies) != 1 || resp.Companies[0].WorkHours.Status != "Открыто" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Companies[0].Phones == nil {
		t.Error("missing list fields must decode as empty")
	}

	filter, _ := json.Marshal(f.lastSearch["filter"])
	want := `[["region = \"minsk\"","region = \"minsk-region\""],"rubric_slugs = \"food/cafe\""]`
	if string(filter) != want {
		t.Errorf("filter = %s, want %s", filter, want)
	}
}

func TestSearchWithoutFilter(t *testing.T) {
	f, srv := newFakeMeili(t)
	if _, err := newClient(srv).Search(context.Background(), SearchParams{Query: "x", Limit: 5}); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.lastSearch["filter"]; ok {
		t.Error("empty filter must be omitted")
	}
}

func TestSuggestReturnsCompanies(t *testing.T) {
	f, srv := newFakeMeili(t)
	cat := "food"
	f.hits = []Document{{ID: "1", Name: "Кафе", City: "Гомель", PrimaryCategorySlug: &cat}}
	resp, err := newClient(srv).Suggest(context.Background(), "каф", "gomel", 8, map[string]string{"food": "utensils"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", resp)
	}
	s := resp.Suggestions[0]
	if s.Type != "company" || s.URL != "/company/1" || *s.Subtitle != "Гомель" || *s.Icon != "utensils" {
		t.Errorf("unexpected suggestion %+v", s)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 500, map[string]string{"message": "down", "code": "internal"})
	}))
	defer srv.Close()

	c := New(Config{Host: srv.URL, Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}}, nil)
	for i := 0; i < 2; i++ {
		err := c.Health(context.Background())
		var meiliErr *meilisearch.Error
		if !errors.As(err, &meiliErr) || meiliErr.StatusCode != 500 {
			t.Fatalf("expected a 500 from the engine, got %v", err)
		}
	}
	if c.Available() {
		t.Error("breaker should be open")
	}
	if err := c.Health(context.Background()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected open circuit, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("open circuit must not reach the server, calls=%d", n)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]string{"message": "bad filter", "code": "invalid_search_filter"})
	}))
	defer srv.Close()

	c := New(Config{Host: srv.URL, Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 1}}, nil)
	for i := 0; i < 3; i++ {
		c.Search(context.Background(), SearchParams{Query: "x"})
	}
	if !c.Available() {
		t.Error("4xx answers must not open the circuit")
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	f, srv := newFakeMeili(t)
	f.failUploads = 1
	src := `{"source_id":"1","name":"А"}` + "\n" + `{"source_id":"2","name":"Б"}`

	res, err := newClient(srv).ReplaceAll(context.Background(), strings.NewReader(src), region.Default())
	if err != nil {
		t.Fatalf("a transient upload failure must be retried: %v", err)
	}
	if res.Indexed != 2 || res.Batches != 1 || len(f.batches) != 1 {
		t.Errorf("unexpected result %+v, batches received %d", res, len(f.batches))
	}
	if f.uploads != 2 {
		t.Errorf("expected one retry, uploads=%d", f.uploads)
	}
}

func TestServerSideClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &meilisearch.Error{StatusCode: 400}, false},
		{"not found", &meilisearch.Error{StatusCode: 404}, false},
		{"throttled", &meilisearch.Error{StatusCode: 429}, true},
		{"internal", &meilisearch.Error{StatusCode: 502}, true},
		{"unreachable", &meilisearch.Error{OriginError: errors.New("connection refused")}, true},
		{"canceled in transport", &meilisearch.Error{OriginError: context.Canceled}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := serverSide(tc.err); got != tc.want {
				t.Errorf("serverSide(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
