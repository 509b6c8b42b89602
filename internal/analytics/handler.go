package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StatsHandler serves the aggregated statistics. With ?index=name the
// per-index search counts are narrowed to that index.
func StatsHandler(agg *Aggregator) http.HandlerFunc {
	logger := slog.Default().With("component", "analytics-handler")
	return func(w http.ResponseWriter, r *http.Request) {
		stats := agg.Stats()
		if name := r.URL.Query().Get("index"); name != "" {
			stats.SearchesByIndex = map[string]int64{name: stats.SearchesByIndex[name]}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Error("failed to write analytics response", "error", err)
		}
	}
}
