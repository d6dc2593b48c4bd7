package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports engine liveness over HTTP: stream connectivity,
// circuit-breaker state, and the age of the last status refresh.
type HealthChecker struct {
	mu             sync.RWMutex
	lastRefresh    time.Time
	streamUp       bool
	breakerTripped bool
	equity         float64
	openPositions  int
}

type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	LastRefresh    time.Time `json:"last_refresh"`
	StreamUp       bool      `json:"stream_up"`
	BreakerTripped bool      `json:"breaker_tripped"`
	Equity         float64   `json:"equity"`
	OpenPositions  int       `json:"open_positions"`
	Uptime         string    `json:"uptime"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// SetStreamUp marks the stream connection state.
func (h *HealthChecker) SetStreamUp(up bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streamUp = up
}

// Refresh records the latest portfolio snapshot values.
func (h *HealthChecker) Refresh(equity float64, openPositions int, breakerTripped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRefresh = time.Now()
	h.equity = equity
	h.openPositions = openPositions
	h.breakerTripped = breakerTripped
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.streamUp || (!h.lastRefresh.IsZero() && time.Since(h.lastRefresh) > 10*time.Minute) {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	health := HealthStatus{
		Status:         status,
		Timestamp:      time.Now(),
		LastRefresh:    h.lastRefresh,
		StreamUp:       h.streamUp,
		BreakerTripped: h.breakerTripped,
		Equity:         h.equity,
		OpenPositions:  h.openPositions,
		Uptime:         time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
