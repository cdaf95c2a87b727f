package task

import (
	"strings"
	"time"
)

// durationRange is the simulated processing time for tasks carrying no work.
type durationRange struct {
	marker string
	min    time.Duration
	spread time.Duration
}

var simulatedDurations = []durationRange{
	{"amazon-search", 2 * time.Second, 3 * time.Second},
	{"openai-analysis", 1500 * time.Millisecond, 2 * time.Second},
	{"document-generation", 3 * time.Second, 4 * time.Second},
}

var defaultDuration = durationRange{"", time.Second, 2 * time.Second}

// EstimateDuration infers how long a task described by description should
// take, using jitter(n) to pick a value in [0, n).
func EstimateDuration(description string, jitter func(n int64) int64) time.Duration {
	r := defaultDuration
	for _, candidate := range simulatedDurations {
		if strings.Contains(description, candidate.marker) {
			r = candidate
			break
		}
	}

	if r.spread <= 0 || jitter == nil {
		return r.min
	}
	return r.min + time.Duration(jitter(int64(r.spread)))
}
