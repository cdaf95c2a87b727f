package gateway

import "time"

// Metrics is a snapshot of a Router's running aggregates.
type Metrics struct {
	// Requests counts dispatched calls, successful or not
	Requests int64 `json:"requests"`
	// Errors counts dispatched calls that failed
	Errors int64 `json:"errors"`
	// Rejected counts calls refused by the rate-limit check before dispatch.
	// They are not part of Requests or the latency mean.
	Rejected int64 `json:"rejected"`
	// AvgResponseTime is the rolling mean latency in milliseconds over all
	// dispatched calls
	AvgResponseTime float64   `json:"avg_response_time_ms"`
	LastRequestAt   time.Time `json:"last_request_at,omitempty"`
}

// GetMetrics returns a copy of the current metrics.
func (r *Router) GetMetrics() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// recordLatency folds one dispatched call into the rolling mean. The
// read-modify-write happens under metricsMu so concurrent completions are
// never lost.
func (r *Router) recordLatency(latency time.Duration, failed bool) {
	ms := float64(latency) / float64(time.Millisecond)

	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	r.metrics.Requests++
	if failed {
		r.metrics.Errors++
	}
	r.metrics.AvgResponseTime += (ms - r.metrics.AvgResponseTime) / float64(r.metrics.Requests)
	r.metrics.LastRequestAt = r.clock.Now()
}

func (r *Router) recordRejected() {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	r.metrics.Rejected++
}
