// Package lavinmq publishes messages to a LavinMQ (AMQP) broker through its
// HTTP management API and probes broker health.
package lavinmq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/fesoni/internal/domain"
)

// Exchange is the exchange every message is published to.
const Exchange = "amq.direct"

// ErrNotRouted is returned when the broker accepted a message but no queue
// was bound to its routing key.
var ErrNotRouted = errors.New("message not routed")

// Config holds broker connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	VHost         string
	HealthTimeout time.Duration
}

// Publisher implements notify.Bus against the management API.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

type publishRequest struct {
	Properties      map[string]any `json:"properties"`
	RoutingKey      string         `json:"routing_key"`
	Payload         string         `json:"payload"`
	PayloadEncoding string         `json:"payload_encoding"`
}

type publishResponse struct {
	Routed bool `json:"routed"`
}

type overviewResponse struct {
	ManagementVersion string `json:"management_version"`
	LavinMQVersion    string `json:"lavinmq_version"`
}

// NewPublisher validates cfg and returns a Publisher. A nil client uses
// http.DefaultClient.
func NewPublisher(cfg Config, client *http.Client, logger *slog.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: lavinmq url is required", domain.ErrConfiguration)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: invalid lavinmq url: %v", domain.ErrConfiguration, err)
	}
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &Publisher{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "lavinmq"),
	}, nil
}

// Publish sends payload, JSON encoded, to the direct exchange under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	body, err := json.Marshal(publishRequest{
		Properties:      map[string]any{},
		RoutingKey:      routingKey,
		Payload:         string(encoded),
		PayloadEncoding: "string",
	})
	if err != nil {
		return fmt.Errorf("encoding publish request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/exchanges/%s/%s/publish",
		p.cfg.URL, url.PathEscape(p.cfg.VHost), Exchange)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", routingKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("publishing to %s: unexpected status %d", routingKey, resp.StatusCode)
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding publish response: %w", err)
	}
	if !out.Routed {
		return fmt.Errorf("%w: routing key %s", ErrNotRouted, routingKey)
	}

	p.logger.Debug("message published", "routing_key", routingKey)
	return nil
}

// Healthy reports whether the management API answers its overview endpoint.
func (p *Publisher) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/api/overview", nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("broker health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var overview overviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		return false
	}
	return overview.ManagementVersion != "" || overview.LavinMQVersion != ""
}
