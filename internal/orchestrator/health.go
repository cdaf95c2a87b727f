package orchestrator

import (
	"context"
	"time"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/redact"
	"github.com/phrazzld/fesoni/internal/task"
	"golang.org/x/sync/errgroup"
)

// DefaultMonitorInterval is the period of MonitorHealth when none is given.
const DefaultMonitorInterval = time.Minute

// SystemStatus is a combined health record of the pipeline's dependencies.
type SystemStatus struct {
	Gateway   bool             `json:"gateway"`
	Bus       bool             `json:"bus"`
	Model     bool             `json:"model"`
	Metrics   gateway.Metrics  `json:"metrics"`
	Queue     task.QueueStatus `json:"queue"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Degraded reports whether the gateway or the real-time bus is down.
func (s SystemStatus) Degraded() bool {
	return !s.Gateway || !s.Bus
}

// GetSystemStatus probes the gateway, the real-time bus and the model
// service concurrently. It never fails: a probe that cannot answer is
// reported as unhealthy.
func (o *Orchestrator) GetSystemStatus(ctx context.Context) SystemStatus {
	var s SystemStatus
	var g errgroup.Group
	g.Go(func() error {
		s.Gateway = o.probe(ctx, "gateway", o.gateway.CheckGatewayHealth)
		return nil
	})
	g.Go(func() error {
		s.Bus = o.probe(ctx, "bus", o.notifier.Healthy)
		return nil
	})
	g.Go(func() error {
		s.Model = o.probe(ctx, "model", o.stylist.Healthy)
		return nil
	})
	_ = g.Wait()

	s.Metrics = o.gateway.GetMetrics()
	s.Queue = o.tasks.GetStatus()
	s.CheckedAt = o.clock.Now()
	return s
}

func (o *Orchestrator) probe(ctx context.Context, name string, check func(context.Context) bool) (healthy bool) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.ErrorContext(ctx, "health probe panicked", "probe", name, "panic", rec)
			healthy = false
		}
	}()
	return check(ctx)
}

// Initialize checks the gateway and bus, registers gateway routes when
// the gateway is healthy and announces readiness. It is a no-op once it
// has succeeded; a route registration failure leaves the orchestrator
// uninitialized so the next call tries again.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	o.notifier.Send(ctx, "Initializing Fesoni services...", notify.LevelInfo)

	gatewayHealthy := o.gateway.CheckGatewayHealth(ctx)
	if !gatewayHealthy {
		o.logger.WarnContext(ctx, "gateway not available, routes not registered")
	}
	if !o.notifier.Healthy(ctx) {
		o.logger.WarnContext(ctx, "real-time bus not available, notifications stay local")
	}

	if gatewayHealthy {
		if err := o.gateway.RegisterRoutes(ctx, o.routes); err != nil {
			o.logger.ErrorContext(ctx, "initialization failed", "error", redact.Error(err))
			o.notifier.Send(ctx, "Some services are unavailable, using fallback mode", notify.LevelWarning)
			return err
		}
	}

	o.initialized = true
	o.notifier.Send(ctx, "Fesoni is ready to find your perfect style!", notify.LevelSuccess)
	return nil
}

// MonitorHealth checks system status every interval until ctx is done and
// warns when the gateway or the bus is down.
func (o *Orchestrator) MonitorHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	for {
		if err := clock.Sleep(ctx, o.clock, interval); err != nil {
			return
		}

		status := o.GetSystemStatus(ctx)
		o.logger.InfoContext(ctx, "system health check",
			"gateway", status.Gateway,
			"bus", status.Bus,
			"model", status.Model,
			"requests", status.Metrics.Requests,
			"errors", status.Metrics.Errors,
			"avg_response_time_ms", status.Metrics.AvgResponseTime,
			"queue_pending", status.Queue.Pending,
			"queue_failed", status.Queue.Failed)
		if status.Degraded() {
			o.notifier.Send(ctx, "Some services are experiencing issues. Switching to fallback mode.", notify.LevelWarning)
		}
	}
}
