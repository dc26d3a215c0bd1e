// Command loadtest drives a mixed directory workload against a running
// service and prints per-endpoint latency and status-code breakdowns.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 1m
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Queries     []string
	Regions     []string
}

// target is one weighted request shape.
type target struct {
	name   string
	weight int
	build  func(w *workload, r *rand.Rand) string
}

// workload holds slugs and ids discovered from the catalog so later
// requests hit real records.
type workload struct {
	cfg     Config
	rubrics []string
	ids     []string
}

type endpointStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

type Stats struct {
	total     atomic.Int64
	endpoints map[string]*endpointStats
}

func NewStats(targets []target) *Stats {
	s := &Stats{endpoints: make(map[string]*endpointStats, len(targets))}
	for _, t := range targets {
		s.endpoints[t.name] = &endpointStats{
			latencies: make([]time.Duration, 0, 10000),
			codes:     make(map[int]int64),
		}
	}
	return s
}

func (s *Stats) RecordRequest(endpoint string, duration time.Duration, statusCode int, err error) {
	s.total.Add(1)
	es := s.endpoints[endpoint]
	es.requests.Add(1)
	if err != nil || statusCode >= 500 {
		es.errors.Add(1)
	}
	if err != nil {
		return
	}
	es.mu.Lock()
	es.latencies = append(es.latencies, duration)
	es.codes[statusCode]++
	es.mu.Unlock()
}

var targets = []target{
	{"catalog", 2, func(w *workload, r *rand.Rand) string {
		return "/api/ibiz/catalog?region=" + w.region(r)
	}},
	{"rubric", 4, func(w *workload, r *rand.Rand) string {
		return fmt.Sprintf("/api/ibiz/rubric?slug=%s&region=%s&offset=%d&limit=24",
			url.QueryEscape(w.rubric(r)), w.region(r), r.IntN(3)*24)
	}},
	{"search", 4, func(w *workload, r *rand.Rand) string {
		return "/api/ibiz/search?q=" + url.QueryEscape(w.query(r)) + "&region=" + w.region(r)
	}},
	{"suggest", 6, func(w *workload, r *rand.Rand) string {
		q := []rune(w.query(r))
		return "/api/ibiz/suggest?q=" + url.QueryEscape(string(q[:min(len(q), 2+r.IntN(4))]))
	}},
	{"company", 3, func(w *workload, r *rand.Rand) string {
		return "/api/ibiz/company/" + url.PathEscape(w.id(r))
	}},
	{"companies", 1, func(w *workload, r *rand.Rand) string {
		ids := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			ids = append(ids, w.id(r))
		}
		return "/api/ibiz/companies?ids=" + url.QueryEscape(strings.Join(ids, ","))
	}},
}

func (w *workload) region(r *rand.Rand) string { return w.cfg.Regions[r.IntN(len(w.cfg.Regions))] }
func (w *workload) query(r *rand.Rand) string  { return w.cfg.Queries[r.IntN(len(w.cfg.Queries))] }

func (w *workload) rubric(r *rand.Rand) string {
	if len(w.rubrics) == 0 {
		return "unknown"
	}
	return w.rubrics[r.IntN(len(w.rubrics))]
}

func (w *workload) id(r *rand.Rand) string {
	if len(w.ids) == 0 {
		return "0"
	}
	return w.ids[r.IntN(len(w.ids))]
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the directory service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit (0 = unlimited)")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Queries: []string{
			"кафе", "ремонт", "шиномонтаж", "строительство", "аптека",
			"гостиница", "такси", "юрист", "бухгалтерские услуги", "доставка",
			"мебель", "стоматология", "автосервис", "печать", "окна",
		},
		Regions: []string{"", "minsk", "minsk-region", "brest", "vitebsk", "gomel", "grodno", "mogilev"},
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Println("=== Directory Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.RPS > 0 {
		fmt.Printf("Rate limit:  %.0f req/s\n", cfg.RPS)
	}

	w, err := discover(client, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discovering workload: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Workload:    %d rubrics, %d company ids\n\n", len(w.rubrics), len(w.ids))

	stats := runLoadTest(client, w)
	printReport(stats, cfg.Duration)
}

// discover reads the catalog and one page per rubric to collect real slugs
// and company ids.
func discover(client *http.Client, cfg Config) (*workload, error) {
	w := &workload{cfg: cfg}
	var catalog struct {
		Categories []struct {
			Rubrics []struct {
				Slug string `json:"slug"`
			} `json:"rubrics"`
		} `json:"categories"`
	}
	if err := getJSON(client, cfg.BaseURL+"/api/ibiz/catalog", &catalog); err != nil {
		return nil, err
	}
	for _, c := range catalog.Categories {
		for _, r := range c.Rubrics {
			w.rubrics = append(w.rubrics, r.Slug)
		}
	}
	for i, slug := range w.rubrics {
		if i >= 20 {
			break
		}
		var page struct {
			Companies []struct {
				ID string `json:"id"`
			} `json:"companies"`
		}
		if err := getJSON(client, cfg.BaseURL+"/api/ibiz/rubric?limit=50&slug="+url.QueryEscape(slug), &page); err != nil {
			return nil, err
		}
		for _, c := range page.Companies {
			w.ids = append(w.ids, c.ID)
		}
	}
	return w, nil
}

func getJSON(client *http.Client, rawURL string, dst any) error {
	resp, err := client.Get(rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func runLoadTest(client *http.Client, w *workload) *Stats {
	cfg := w.cfg
	stats := NewStats(targets)
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	totalWeight := 0
	for _, t := range targets {
		totalWeight += t.weight
	}
	pick := func(r *rand.Rand) target {
		n := r.IntN(totalWeight)
		for _, t := range targets {
			if n < t.weight {
				return t
			}
			n -= t.weight
		}
		return targets[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		r := rand.New(rand.NewPCG(uint64(i), uint64(time.Now().UnixNano())))
		g.Go(func() error {
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				t := pick(r)
				start := time.Now()
				resp, err := client.Do(mustNewRequest(gctx, cfg.BaseURL+t.build(w, r)))
				elapsed := time.Since(start)
				if gctx.Err() != nil {
					return nil
				}
				if err != nil {
					stats.RecordRequest(t.name, elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(t.name, elapsed, resp.StatusCode, nil)
			}
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	if total > 0 {
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	fmt.Println()
	fmt.Printf("%-10s %8s %7s %10s %10s %10s %10s\n", "endpoint", "requests", "errors", "p50", "p95", "p99", "max")

	names := make([]string, 0, len(stats.endpoints))
	for name := range stats.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		es := stats.endpoints[name]
		es.mu.Lock()
		latencies := append([]time.Duration(nil), es.latencies...)
		es.mu.Unlock()
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var maxLatency time.Duration
		if len(latencies) > 0 {
			maxLatency = latencies[len(latencies)-1]
		}
		fmt.Printf("%-10s %8d %7d %10s %10s %10s %10s\n", name,
			es.requests.Load(), es.errors.Load(),
			percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99), maxLatency)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	for _, name := range names {
		es := stats.endpoints[name]
		es.mu.Lock()
		codes := make([]int, 0, len(es.codes))
		for code := range es.codes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%d=%d", code, es.codes[code]))
		}
		es.mu.Unlock()
		fmt.Printf("  %-10s %s\n", name, strings.Join(parts, " "))
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
