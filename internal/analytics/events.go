package analytics

import "time"

// Op names the directory operation an event was recorded for.
type Op string

const (
	OpCatalog   Op = "catalog"
	OpRubric    Op = "rubric"
	OpCompany   Op = "company"
	OpCompanies Op = "companies"
	OpSuggest   Op = "suggest"
	OpSearch    Op = "search"
	OpNearby    Op = "nearby"
	OpExport    Op = "export"
)

// QueryEvent is one answered directory request.
type QueryEvent struct {
	Op          Op        `json:"op"`
	Query       string    `json:"query,omitempty"`
	Region      string    `json:"region,omitempty"`
	Total       int       `json:"total"`
	Returned    int       `json:"returned"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Accelerated bool      `json:"accelerated"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// searchable reports whether the op carries user-typed text worth ranking.
func (op Op) searchable() bool {
	return op == OpSearch || op == OpSuggest || op == OpRubric
}
