package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/config"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/redact"
	"golang.org/x/sync/singleflight"
)

// UnknownService is the bucket for endpoints matching no configured prefix.
const UnknownService = "unknown"

// Header names attached to every routed call.
const (
	HeaderAPIKey     = "Kong-API-Key"
	HeaderAdminToken = "Kong-Admin-Token"
	HeaderRequestID  = "X-Request-ID"
	HeaderService    = "X-Service"
	HeaderClient     = "X-Client"
)

// RequestConfig describes a call relative to the gateway base URL.
type RequestConfig struct {
	Method string
	Header http.Header
	Query  url.Values
	// Body is JSON encoded when non-nil
	Body any
}

func (c RequestConfig) clone() RequestConfig {
	out := c
	out.Header = c.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	return out
}

// Call identifies an in-flight routed call.
type Call struct {
	RequestID string
	Service   string
	Endpoint  string
}

// CallFunc performs the work of a routed call. It should honor ctx.
type CallFunc func(ctx context.Context, call Call) error

// Router is the gateway envelope. One Router owns one metrics accumulator
// and one rate-limit cache; it is safe for concurrent use.
type Router struct {
	cfg       config.GatewayConfig
	baseURL   string
	transport Transport
	clock     clock.Clock
	logger    *slog.Logger

	// services sorted by descending prefix length
	services []config.ServiceConfig
	limits   map[string]*serviceLimit
	group    singleflight.Group

	metricsMu sync.Mutex
	metrics   Metrics
}

// NewRouter validates cfg and builds a Router. A nil transport uses
// NewHTTPTransport(nil); a nil clock uses the real clock.
func NewRouter(cfg config.GatewayConfig, transport Transport, clk clock.Clock, logger *slog.Logger) (*Router, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: gateway base url is required", domain.ErrConfiguration)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: invalid gateway base url: %v", domain.ErrConfiguration, err)
	}

	if transport == nil {
		transport = NewHTTPTransport(nil)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "fesoni-web-app"
	}

	services := append([]config.ServiceConfig(nil), cfg.Services...)
	sort.SliceStable(services, func(i, j int) bool {
		return len(services[i].Prefix) > len(services[j].Prefix)
	})

	r := &Router{
		cfg:       cfg,
		baseURL:   base,
		transport: transport,
		clock:     clk,
		logger:    logger.With("component", "gateway"),
		services:  services,
		limits:    make(map[string]*serviceLimit, len(services)),
	}
	for _, svc := range services {
		r.limits[svc.Name] = newServiceLimit(svc, clk.Now())
	}
	return r, nil
}

// ServiceFor resolves the logical service of endpoint: the longest
// configured prefix that matches on a path segment boundary, or
// UnknownService.
func (r *Router) ServiceFor(endpoint string) string {
	path := endpoint
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, svc := range r.services {
		prefix := strings.TrimRight(svc.Prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return svc.Name
		}
	}
	return UnknownService
}

// Invoke runs fn inside the envelope. The returned error, if any, is always
// a *Error.
func (r *Router) Invoke(ctx context.Context, endpoint string, fn CallFunc) error {
	call := Call{
		RequestID: "req-" + uuid.NewString(),
		Service:   r.ServiceFor(endpoint),
		Endpoint:  endpoint,
	}
	logger := r.logger.With(
		"request_id", call.RequestID,
		"service", call.Service,
		"endpoint", endpoint,
	)

	if err := r.checkAndEnforceRateLimit(ctx, call.Service); err != nil {
		r.recordRejected()
		var gwErr *Error
		if errors.As(err, &gwErr) {
			gwErr.Endpoint = endpoint
			gwErr.RequestID = call.RequestID
		}
		logger.Warn("request rejected by rate limit", "error", err)
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := r.clock.Now()
	err := fn(callCtx, call)
	latency := r.clock.Now().Sub(start)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	r.recordLatency(latency, err != nil)

	if err == nil {
		logger.Debug("request completed", "latency", latency)
		return nil
	}

	now := r.clock.Now()
	kind, status, reset := classify(err, now)
	gwErr := &Error{
		Kind:       kind,
		Service:    call.Service,
		Endpoint:   endpoint,
		RequestID:  call.RequestID,
		StatusCode: status,
		ResetTime:  reset,
		Err:        err,
	}
	logger.Error("request failed",
		"latency", latency,
		"status_code", status,
		"kind", kind.Error(),
		"error", redact.Error(err))
	return gwErr
}

// RouteRequest sends a request to endpoint through the gateway. Non-2xx
// responses are returned as classified errors.
func (r *Router) RouteRequest(ctx context.Context, endpoint string, cfg RequestConfig) (*Response, error) {
	var resp *Response
	err := r.Invoke(ctx, endpoint, func(ctx context.Context, call Call) error {
		req, err := r.buildRequest(endpoint, cfg, call)
		if err != nil {
			return err
		}

		out, err := r.transport.Do(ctx, req)
		if err != nil {
			return err
		}
		if out.StatusCode < 200 || out.StatusCode >= 300 {
			return &StatusError{StatusCode: out.StatusCode, RetryAfter: out.Header.Get("Retry-After")}
		}

		out.RequestID = call.RequestID
		out.Service = call.Service
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Router) buildRequest(endpoint string, cfg RequestConfig, call Call) (*Request, error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	target := r.baseURL + endpoint
	if len(cfg.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + cfg.Query.Encode()
	}

	header := cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if r.cfg.APIKey != "" {
		header.Set(HeaderAPIKey, r.cfg.APIKey)
	}
	header.Set(HeaderRequestID, call.RequestID)
	header.Set(HeaderService, call.Service)
	header.Set(HeaderClient, r.cfg.ClientName)

	var body []byte
	if cfg.Body != nil {
		encoded, err := json.Marshal(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %v", domain.ErrGeneric, err)
		}
		body = encoded
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	return &Request{Method: method, URL: target, Header: header, Body: body}, nil
}
