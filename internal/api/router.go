package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/fesoni/internal/api/middleware"
	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/gateway"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/orchestrator"
	"github.com/phrazzld/fesoni/internal/task"
)

// TaskQueue is the subset of the task queue served over HTTP.
type TaskQueue interface {
	AddTask(description string, priority task.Priority, opts ...task.Option) string
	Get(id string) (task.Task, bool)
	List() []task.Task
	GetStatus() task.QueueStatus
	OnStatusChange(cb func(task.QueueStatus)) (unsubscribe func())
	Clear(id string) bool
	Resubmit(id string) (string, error)
}

// Notifications exposes recent notifications and live delivery.
type Notifications interface {
	Recent() []notify.Notification
	OnNotification(fn func(notify.Notification)) (unsubscribe func())
}

// Shopper runs the shopping pipelines and reports system health.
type Shopper interface {
	ProcessShoppingRequest(ctx context.Context, input, userID string) (*orchestrator.Result, error)
	ProcessEnhancedShoppingRequest(ctx context.Context, input, userID string) (*orchestrator.Result, error)
	GetSystemStatus(ctx context.Context) orchestrator.SystemStatus
}

// GatewayStats exposes the gateway router's metrics and rate-limit budgets.
type GatewayStats interface {
	GetMetrics() gateway.Metrics
	CheckRateLimit(ctx context.Context, service string) gateway.RateLimitInfo
}

// Handler serves the HTTP API.
type Handler struct {
	tasks         TaskQueue
	notifications Notifications
	shopper       Shopper
	gateway       GatewayStats
	logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(
	tasks TaskQueue,
	notifications Notifications,
	shopper Shopper,
	gw GatewayStats,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tasks:         tasks,
		notifications: notifications,
		shopper:       shopper,
		gateway:       gw,
		logger:        logger.With("component", "api"),
	}
}

// Routes returns the router with every endpoint and the shared middleware.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.Trace(h.logger))
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.CreateTask)
			r.Get("/", h.ListTasks)
			r.Get("/status", h.QueueStatus)
			r.Get("/{id}", h.GetTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Post("/{id}/resubmit", h.ResubmitTask)
		})

		r.Get("/events", h.Events)
		r.Get("/notifications", h.RecentNotifications)
		r.Post("/shopping", h.Shopping)

		r.Get("/system/status", h.SystemStatus)
		r.Get("/gateway/metrics", h.GatewayMetrics)
		r.Get("/gateway/rate-limits/{service}", h.RateLimit)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
	})

	return r
}
