package api

import (
	"maps"
	"net/http"
)

// StatsProvider reports service counters for GET /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves the provider's counters alongside the process uptime.
type StatsHandler struct {
	provider StatsProvider
	health   *HealthHandler
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(provider StatsProvider, health *HealthHandler) *StatsHandler {
	return &StatsHandler{provider: provider, health: health}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := maps.Clone(h.provider.GetStats())
	if stats == nil {
		stats = map[string]interface{}{}
	}
	if h.health != nil {
		stats["uptime_seconds"] = h.health.Uptime().Seconds()
	}
	writeJSON(w, http.StatusOK, stats)
}
