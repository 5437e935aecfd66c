package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cbeckmann/shapemc/internal/updater"
)

// writeJSON serializes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// overallAcceptance returns the acceptance rate across all particle types,
// or 0 when nothing has been counted yet.
func overallAcceptance(counts map[string]updater.Counts) float64 {
	var accepted, total uint64
	for _, c := range counts {
		accepted += c.Accepted
		total += c.Total()
	}
	if total == 0 {
		return 0
	}
	return float64(accepted) / float64(total)
}
