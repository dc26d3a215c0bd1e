package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
)

const (
	// maxLatencySamples bounds the ring used for percentiles.
	maxLatencySamples = 10000
	// maxDistinctQueries bounds the query-count maps; later new queries are
	// not tracked once it is reached.
	maxDistinctQueries = 50000
	topQueries         = 10
)

type Stats struct {
	TotalQueries      int64            `json:"total_queries"`
	ByOp              map[string]int64 `json:"by_op"`
	ByRegion          map[string]int64 `json:"by_region"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	CacheHitRate      float64          `json:"cache_hit_rate"`
	Accelerated       int64            `json:"accelerated"`
	AcceleratedShare  float64          `json:"accelerated_share"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Since             time.Time        `json:"since"`
	CapturedAt        time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds query events into running totals.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	byOp        map[string]int64
	byRegion    map[string]int64
	cacheHits   int64
	accelerated int64
	zero        int64

	latencies []int64
	next      int
	sum       int64
	samples   int64

	queryCounts map[string]int64
	zeroQueries map[string]int64

	start  time.Time
	now    func() time.Time
	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	a := &Aggregator{now: time.Now, logger: slog.Default().With("component", "analytics-aggregator")}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.total, a.cacheHits, a.accelerated, a.zero = 0, 0, 0, 0
	a.byOp = make(map[string]int64)
	a.byRegion = make(map[string]int64)
	a.latencies = make([]int64, 0, 1024)
	a.next, a.sum, a.samples = 0, 0, 0
	a.queryCounts = make(map[string]int64)
	a.zeroQueries = make(map[string]int64)
	a.start = a.now()
}

// Reset drops every total and restarts the rate window.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *Aggregator) Record(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byOp[string(ev.Op)]++
	region := ev.Region
	if region == "" {
		region = "all"
	}
	a.byRegion[region]++
	if ev.CacheHit {
		a.cacheHits++
	}
	if ev.Accelerated {
		a.accelerated++
	}

	lat := ev.LatencyMs
	if lat < 0 {
		lat = 0
	}
	a.sum += lat
	a.samples++
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, lat)
	} else {
		a.latencies[a.next] = lat
		a.next = (a.next + 1) % maxLatencySamples
	}

	zero := ev.Total == 0 && ev.Op != OpCompany && ev.Op != OpCatalog
	if zero {
		a.zero++
	}
	q := normalizeQuery(ev.Query)
	if q == "" || !ev.Op.searchable() {
		return
	}
	bump(a.queryCounts, q)
	if zero {
		bump(a.zeroQueries, q)
	}
}

func bump(m map[string]int64, key string) {
	if _, ok := m[key]; !ok && len(m) >= maxDistinctQueries {
		return
	}
	m[key]++
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and skipped so one bad producer cannot stall the
// partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		if ev.Op == "" {
			return nil
		}
		agg.Record(ev)
		return nil
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	stats := Stats{
		TotalQueries:      a.total,
		ByOp:              copyCounts(a.byOp),
		ByRegion:          copyCounts(a.byRegion),
		CacheHits:         a.cacheHits,
		CacheMisses:       a.total - a.cacheHits,
		Accelerated:       a.accelerated,
		ZeroResultCount:   a.zero,
		TopQueries:        topN(a.queryCounts, topQueries),
		ZeroResultQueries: topN(a.zeroQueries, topQueries),
		Since:             a.start.UTC(),
		CapturedAt:        now.UTC(),
	}
	if a.total > 0 {
		stats.CacheHitRate = float64(a.cacheHits) / float64(a.total)
		stats.AcceleratedShare = float64(a.accelerated) / float64(a.total)
	}
	if a.samples > 0 {
		stats.AvgLatencyMs = float64(a.sum) / float64(a.samples)
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := now.Sub(a.start).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
