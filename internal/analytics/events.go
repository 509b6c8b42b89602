package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent describes one executed search. It is the payload published to
// the analytics topic.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Index     string    `json:"index"`
	Query     string    `json:"query"`
	Fields    []string  `json:"fields,omitempty"`
	Fuzzy     bool      `json:"fuzzy"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewSearchEvent fills Type from the hit count.
func NewSearchEvent(index, query string, totalHits, returned int, latency time.Duration) SearchEvent {
	t := EventSearch
	if totalHits == 0 {
		t = EventZeroResult
	}
	return SearchEvent{
		Type:      t,
		Index:     index,
		Query:     query,
		TotalHits: totalHits,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}
