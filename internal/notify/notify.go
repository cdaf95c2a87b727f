// Package notify publishes human-readable events to the real-time bus and to
// in-process subscribers. Publishing is fire-and-forget: a bus that is down
// or misconfigured degrades to a structured log line and never surfaces an
// error to the sender.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/observer"
)

// Level classifies a notification for display.
type Level string

// Notification levels
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Routing keys used on the bus.
const (
	RoutingNotifications = "fesoni.notifications"
	RoutingTasks         = "fesoni.tasks"
)

// DefaultSource identifies this application in published envelopes.
const DefaultSource = "fesoni-app"

// ErrBusUnavailable is returned by buses that cannot publish.
var ErrBusUnavailable = errors.New("notification bus unavailable")

// Notification is the envelope published for every message.
type Notification struct {
	Message   string    `json:"message"`
	Type      Level     `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// TaskEvent announces a task lifecycle change on the tasks routing key.
type TaskEvent struct {
	Kind        string    `json:"type"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"task"`
	Priority    string    `json:"priority,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Bus is the external real-time message bus.
type Bus interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Healthy(ctx context.Context) bool
}

// NopBus is used when no bus is configured. Every publish fails so callers
// take the local fallback path.
type NopBus struct{}

// Publish always returns ErrBusUnavailable.
func (NopBus) Publish(context.Context, string, any) error { return ErrBusUnavailable }

// Healthy always reports false.
func (NopBus) Healthy(context.Context) bool { return false }

// Config controls retention and publishing.
type Config struct {
	Source         string
	RecentLimit    int
	RecentTTL      time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig keeps the last five notifications for five seconds.
func DefaultConfig() Config {
	return Config{
		Source:         DefaultSource,
		RecentLimit:    5,
		RecentTTL:      5 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

type recentEntry struct {
	n     Notification
	timer clock.Timer
}

// Channel is the notification channel. It is safe for concurrent use.
type Channel struct {
	bus    Bus
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
	subs   *observer.Registry[Notification]

	mu     sync.Mutex
	recent []*recentEntry

	inflight sync.WaitGroup
}

// New creates a Channel. A nil bus is replaced by NopBus.
func New(bus Bus, clk clock.Clock, logger *slog.Logger, cfg Config) *Channel {
	if bus == nil {
		bus = NopBus{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.Source == "" {
		cfg.Source = defaults.Source
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = defaults.RecentLimit
	}
	if cfg.RecentTTL <= 0 {
		cfg.RecentTTL = defaults.RecentTTL
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}

	logger = logger.With("component", "notify")
	return &Channel{
		bus:    bus,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
		subs:   observer.New[Notification](logger),
	}
}

// Send records a notification, delivers it to local subscribers and
// publishes it to the bus in the background.
func (c *Channel) Send(ctx context.Context, message string, level Level) {
	n := Notification{
		Message:   message,
		Type:      level,
		Timestamp: c.clock.Now(),
		Source:    c.cfg.Source,
	}

	c.remember(n)
	c.subs.Notify(n)
	c.publish(ctx, RoutingNotifications, n, func() {
		c.logger.Info("notification",
			"type", string(level),
			"message", message,
			"delivery", "local")
	})
}

// AnnounceTask publishes a task lifecycle event to the tasks routing key.
// Announcements are not retained or delivered to local subscribers.
func (c *Channel) AnnounceTask(ctx context.Context, ev TaskEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.clock.Now()
	}
	c.publish(ctx, RoutingTasks, ev, func() {
		c.logger.Debug("task event not published",
			"task_id", ev.TaskID,
			"event", ev.Kind)
	})
}

// Recent returns up to RecentLimit unexpired notifications, oldest first.
func (c *Channel) Recent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-c.cfg.RecentTTL)
	out := make([]Notification, 0, len(c.recent))
	for _, e := range c.recent {
		if e.n.Timestamp.After(cutoff) {
			out = append(out, e.n)
		}
	}
	return out
}

// OnNotification registers fn for every notification sent through the
// channel and returns a function that removes it.
func (c *Channel) OnNotification(fn func(Notification)) (unsubscribe func()) {
	return c.subs.Subscribe(fn)
}

// Healthy reports whether the bus is reachable.
func (c *Channel) Healthy(ctx context.Context) bool {
	return c.bus.Healthy(ctx)
}

// Wait blocks until every in-flight publish has finished.
func (c *Channel) Wait() {
	c.inflight.Wait()
}

func (c *Channel) publish(ctx context.Context, routingKey string, payload any, fallback func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Publishing outlives the caller's request
	ctx = context.WithoutCancel(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
		defer cancel()

		if err := c.bus.Publish(pubCtx, routingKey, payload); err != nil {
			c.logger.Debug("bus publish failed",
				"routing_key", routingKey,
				"error", err)
			fallback()
		}
	}()
}

func (c *Channel) remember(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &recentEntry{n: n}
	entry.timer = c.clock.AfterFunc(c.cfg.RecentTTL, func() { c.expire(entry) })
	c.recent = append(c.recent, entry)

	for len(c.recent) > c.cfg.RecentLimit {
		c.recent[0].timer.Stop()
		c.recent = c.recent[1:]
	}
}

func (c *Channel) expire(entry *recentEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.recent {
		if e == entry {
			c.recent = append(c.recent[:i], c.recent[i+1:]...)
			return
		}
	}
}
