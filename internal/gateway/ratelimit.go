package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/domain"
	"golang.org/x/time/rate"
)

// Fallback budget reported by CheckRateLimit when the authority is down.
const (
	fallbackRemaining = 50
	fallbackReset     = time.Hour
)

// RateLimitInfo is a service's remaining budget as reported by the
// rate-limit authority.
type RateLimitInfo struct {
	Service   string    `json:"service"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit,omitempty"`
	ResetTime time.Time `json:"reset_time"`
	// Fallback is set when the authority could not be reached
	Fallback bool `json:"fallback,omitempty"`
}

type rateLimitPayload struct {
	Remaining *int      `json:"remaining" validate:"required,gte=0"`
	Limit     int       `json:"limit"     validate:"gte=0"`
	ResetTime time.Time `json:"resetTime"`
}

// serviceLimit holds the local token bucket and the cached authority
// answer for one service.
type serviceLimit struct {
	cfg     config.ServiceConfig
	limiter *rate.Limiter

	mu        sync.Mutex
	cached    *RateLimitInfo
	fetchedAt time.Time
}

func newServiceLimit(cfg config.ServiceConfig, now time.Time) *serviceLimit {
	limit, burst := rate.Inf, 1
	if cfg.Requests > 0 && cfg.Window > 0 {
		limit, burst = rate.Every(cfg.Window/time.Duration(cfg.Requests)), cfg.Requests
	}
	limiter := rate.NewLimiter(limit, burst)
	// Start with a full bucket measured against the router's clock
	limiter.SetLimitAt(now, limit)
	return &serviceLimit{cfg: cfg, limiter: limiter}
}

func (s *serviceLimit) interval() time.Duration {
	if s.cfg.Requests <= 0 {
		return 0
	}
	return s.cfg.Window / time.Duration(s.cfg.Requests)
}

// checkAndEnforceRateLimit fails fast with a rate-limited *Error when the
// service's budget is exhausted. Failures to reach the authority are logged
// and the call proceeds.
func (r *Router) checkAndEnforceRateLimit(ctx context.Context, service string) error {
	limit, ok := r.limits[service]
	if !ok {
		return nil
	}

	now := r.clock.Now()
	info, err := r.cachedBudget(ctx, limit)
	if err != nil {
		r.logger.Warn("rate limit check failed, proceeding with request",
			"service", service,
			"error", err)
	} else if info.Remaining <= 0 && info.ResetTime.After(now) {
		return &Error{
			Kind:      domain.ErrRateLimited,
			Service:   service,
			ResetTime: info.ResetTime,
		}
	}

	if !limit.limiter.AllowN(now, 1) {
		return &Error{
			Kind:      domain.ErrRateLimited,
			Service:   service,
			ResetTime: now.Add(limit.interval()),
		}
	}

	limit.mu.Lock()
	if limit.cached != nil && limit.cached.Remaining > 0 {
		limit.cached.Remaining--
	}
	limit.mu.Unlock()

	return nil
}

// cachedBudget returns the cached authority answer while it is fresh and
// queries the authority otherwise.
func (r *Router) cachedBudget(ctx context.Context, limit *serviceLimit) (RateLimitInfo, error) {
	limit.mu.Lock()
	if limit.cached != nil && r.cfg.RateLimitTTL > 0 &&
		r.clock.Now().Sub(limit.fetchedAt) < r.cfg.RateLimitTTL {
		info := *limit.cached
		limit.mu.Unlock()
		return info, nil
	}
	limit.mu.Unlock()

	return r.queryBudget(ctx, limit.cfg.Name)
}

// queryBudget asks the authority for service's budget. Concurrent queries
// for the same service share one request.
func (r *Router) queryBudget(ctx context.Context, service string) (RateLimitInfo, error) {
	v, err, _ := r.group.Do(service, func() (interface{}, error) {
		info, err := r.fetchBudget(ctx, service)
		if err != nil {
			return RateLimitInfo{}, err
		}

		if limit, ok := r.limits[service]; ok {
			limit.mu.Lock()
			cached := info
			limit.cached = &cached
			limit.fetchedAt = r.clock.Now()
			limit.mu.Unlock()
		}
		return info, nil
	})
	if err != nil {
		return RateLimitInfo{}, err
	}
	return v.(RateLimitInfo), nil
}

func (r *Router) fetchBudget(ctx context.Context, service string) (RateLimitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	resp, err := r.transport.Do(ctx, &Request{
		Method: http.MethodGet,
		URL:    r.baseURL + "/status/rate-limits/" + url.PathEscape(service),
		Header: r.adminHeader(),
	})
	if err != nil {
		return RateLimitInfo{}, fmt.Errorf("querying rate limit: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return RateLimitInfo{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var payload rateLimitPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return RateLimitInfo{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(payload); err != nil {
		return RateLimitInfo{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	reset := payload.ResetTime
	if reset.IsZero() {
		reset = r.clock.Now().Add(fallbackReset)
	}
	return RateLimitInfo{
		Service:   service,
		Remaining: *payload.Remaining,
		Limit:     payload.Limit,
		ResetTime: reset,
	}, nil
}

// CheckRateLimit reports the authority's budget for service ("global" when
// empty). It never fails: an unreachable authority yields a conservative
// fallback of 50 remaining calls resetting in one hour.
func (r *Router) CheckRateLimit(ctx context.Context, service string) RateLimitInfo {
	if service == "" {
		service = "global"
	}

	info, err := r.queryBudget(ctx, service)
	if err != nil {
		r.logger.Warn("rate limit query failed, using fallback",
			"service", service,
			"error", err)
		return RateLimitInfo{
			Service:   service,
			Remaining: fallbackRemaining,
			ResetTime: r.clock.Now().Add(fallbackReset),
			Fallback:  true,
		}
	}
	return info
}

func (r *Router) adminHeader() http.Header {
	h := http.Header{}
	if r.cfg.APIKey != "" {
		h.Set(HeaderAdminToken, r.cfg.APIKey)
	}
	return h
}
