package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Route is a gateway route definition registered through the admin API.
type Route struct {
	Name      string   `json:"name"`
	Paths     []string `json:"paths"`
	Service   string   `json:"service"`
	StripPath bool     `json:"strip_path"`
}

// DefaultRoutes returns the routes the application depends on.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "amazon-search", Paths: []string{"/amazon/search"}, Service: "amazon-api", StripPath: true},
		{Name: "openai-chat", Paths: []string{"/openai/chat"}, Service: "openai-api", StripPath: true},
		{Name: "foxit-documents", Paths: []string{"/foxit/documents"}, Service: "foxit-api", StripPath: true},
	}
}

type healthPayload struct {
	Status string `json:"status"`
}

// CheckGatewayHealth reports whether the gateway answers GET /status with
// status "healthy". Any failure is reported as unhealthy.
func (r *Router) CheckGatewayHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	resp, err := r.transport.Do(ctx, &Request{
		Method: http.MethodGet,
		URL:    r.baseURL + "/status",
		Header: r.adminHeader(),
	})
	if err != nil {
		r.logger.Warn("gateway health check failed", "error", err)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("gateway health check failed", "status_code", resp.StatusCode)
		return false
	}

	var payload healthPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return false
	}
	return payload.Status == "healthy"
}

// RegisterRoutes posts routes to the gateway admin API. Every route is
// attempted; the returned error joins the individual failures.
func (r *Router) RegisterRoutes(ctx context.Context, routes []Route) error {
	var errs []error
	for _, route := range routes {
		if err := r.registerRoute(ctx, route); err != nil {
			r.logger.Error("failed to configure route", "route", route.Name, "error", err)
			errs = append(errs, fmt.Errorf("route %s: %w", route.Name, err))
			continue
		}
		r.logger.Info("gateway route configured", "route", route.Name)
	}
	return errors.Join(errs...)
}

func (r *Router) registerRoute(ctx context.Context, route Route) error {
	body, err := json.Marshal(route)
	if err != nil {
		return err
	}

	header := r.adminHeader()
	header.Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := r.transport.Do(ctx, &Request{
		Method: http.MethodPost,
		URL:    r.baseURL + "/routes",
		Header: header,
		Body:   body,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
