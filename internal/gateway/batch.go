package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/redact"
	"golang.org/x/sync/errgroup"
)

// BatchRequest is one entry of a batch.
type BatchRequest struct {
	Endpoint string
	Config   RequestConfig
}

// BatchRouteRequests dispatches reqs with a staggered start of
// BatchStagger*index. A failed request leaves nil in its slot; the result
// always has len(reqs) entries in input order.
func (r *Router) BatchRouteRequests(ctx context.Context, reqs []BatchRequest) []*Response {
	results := make([]*Response, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			delay := time.Duration(i) * r.cfg.BatchStagger
			if err := clock.Sleep(ctx, r.clock, delay); err != nil {
				return nil
			}

			cfg := req.Config.clone()
			cfg.Header.Set("X-Batch-Request", "true")
			cfg.Header.Set("X-Batch-Index", strconv.Itoa(i))

			resp, err := r.RouteRequest(ctx, req.Endpoint, cfg)
			if err != nil {
				r.logger.Warn("batch request failed",
					"index", i,
					"endpoint", req.Endpoint,
					"error", redact.Error(err))
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	// Failures are isolated per slot, so the group never returns an error
	_ = g.Wait()

	return results
}
