package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker backs the /healthz and /readyz endpoints. Liveness is
// trivially true while the process runs; readiness flips on only after
// snapshot restore, the DB and NATS connections are up, and flips off
// again when shutdown begins so the load balancer drains first.
type HealthChecker struct {
	ready     atomic.Bool
	startedAt time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startedAt: time.Now()}
}

// SetReady flips the readiness gate.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

type healthStatus struct {
	Status    string `json:"status"`
	StartedAt string `json:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
}

// LivenessHandler answers 200 for a running process.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, healthStatus{
		Status:    "alive",
		StartedAt: h.startedAt.UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startedAt).String(),
	})
}

// ReadinessHandler answers 200 once the service accepts traffic and
// 503 before restore finishes or after drain begins.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		writeStatus(w, http.StatusOK, healthStatus{Status: "ready"})
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, healthStatus{Status: "not_ready"})
}

func writeStatus(w http.ResponseWriter, code int, body healthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
