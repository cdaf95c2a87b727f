package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/observer"
	"github.com/phrazzld/fesoni/internal/redact"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed   = errors.New("task queue is closed")
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotFailed = errors.New("task has not failed")
)

// Config holds configuration for the queue
type Config struct {
	// MaxAttempts bounds how many times a task is processed
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt count to get the delay
	// before the next attempt
	RetryBackoff time.Duration

	// PurgeDelay is how long a completed task stays visible
	PurgeDelay time.Duration

	// ProcessDelay is the delay between enqueue and the first attempt.
	// Zero still defers processing to a timer callback.
	ProcessDelay time.Duration

	// WorkTimeout bounds a single attempt of a task's work
	WorkTimeout time.Duration
}

// DefaultConfig returns a Config with the standard retry and purge policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		RetryBackoff: 5 * time.Second,
		PurgeDelay:   30 * time.Second,
		WorkTimeout:  2 * time.Minute,
	}
}

// Notifier receives user-facing task outcomes.
type Notifier interface {
	Send(ctx context.Context, message string, level notify.Level)
	AnnounceTask(ctx context.Context, ev notify.TaskEvent)
}

// Option customizes a task at enqueue time.
type Option func(*record)

// WithWork attaches the work to run. Tasks without work complete after a
// simulated duration inferred from their description.
func WithWork(work Work) Option {
	return func(r *record) {
		r.work = work
	}
}

type record struct {
	task  Task
	work  Work
	timer clock.Timer
}

// Queue owns the live task set. All mutation happens through its methods;
// readers receive copies.
type Queue struct {
	cfg      Config
	clock    clock.Clock
	notifier Notifier
	logger   *slog.Logger
	subs     *observer.Registry[QueueStatus]
	jitter   func(n int64) int64

	mu     sync.Mutex
	tasks  map[string]*record
	order  []string
	closed bool

	// Status snapshots waiting for delivery, in mutation order
	outbox    []QueueStatus
	deliverMu sync.Mutex
}

// NewQueue creates a queue. A nil notifier disables notifications.
func NewQueue(cfg Config, clk clock.Clock, notifier Notifier, logger *slog.Logger) *Queue {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.PurgeDelay <= 0 {
		cfg.PurgeDelay = defaults.PurgeDelay
	}
	if cfg.WorkTimeout <= 0 {
		cfg.WorkTimeout = defaults.WorkTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_queue")

	return &Queue{
		cfg:      cfg,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		subs:     observer.New[QueueStatus](logger),
		jitter:   rand.Int64N,
		tasks:    make(map[string]*record),
	}
}

// AddTask enqueues a task and returns its id. It never fails and never
// blocks on the task's work; processing starts from a timer callback after
// AddTask has returned.
func (q *Queue) AddTask(description string, priority Priority, opts ...Option) string {
	id := "task-" + uuid.NewString()
	rec := &record{
		task: Task{
			ID:          id,
			Description: description,
			Status:      TaskStatusPending,
			Priority:    ParsePriority(string(priority)),
			CreatedAt:   q.clock.Now(),
		},
	}
	for _, opt := range opts {
		opt(rec)
	}

	q.mu.Lock()
	q.tasks[id] = rec
	q.order = append(q.order, id)
	if q.closed {
		rec.task.Status = TaskStatusFailed
		rec.task.Error = ErrQueueClosed.Error()
	} else {
		rec.timer = q.clock.AfterFunc(q.cfg.ProcessDelay, func() { q.processTask(id) })
	}
	snapshot := rec.task
	q.enqueueStatusLocked()
	q.mu.Unlock()

	q.flush()

	q.logger.Debug("task enqueued",
		"task_id", id,
		"description", description,
		"priority", string(snapshot.Priority))
	q.announce(snapshot, "task_created", "")

	return id
}

// GetStatus returns the current aggregate counts.
func (q *Queue) GetStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

// OnStatusChange registers cb for every status broadcast and returns a
// function that removes it. Once the returned function has been called no
// new deliveries to cb start.
func (q *Queue) OnStatusChange(cb func(QueueStatus)) (unsubscribe func()) {
	return q.subs.Subscribe(cb)
}

// Get returns a snapshot of a single task.
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return rec.task, true
}

// List returns snapshots of all live tasks in creation order.
func (q *Queue) List() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].task)
	}
	return out
}

// Clear removes a task from the live set, cancelling any scheduled retry or
// purge. It reports whether the task existed.
func (q *Queue) Clear(id string) bool {
	q.mu.Lock()
	if !q.removeLocked(id) {
		q.mu.Unlock()
		return false
	}
	q.enqueueStatusLocked()
	q.mu.Unlock()

	q.flush()
	return true
}

// ClearFailed removes every terminally failed task and returns how many were
// removed. Failed tasks with a retry still scheduled are kept.
func (q *Queue) ClearFailed() int {
	q.mu.Lock()
	var ids []string
	for _, id := range q.order {
		rec := q.tasks[id]
		if rec.task.Status == TaskStatusFailed && rec.timer == nil {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		q.removeLocked(id)
	}
	if len(ids) > 0 {
		q.enqueueStatusLocked()
	}
	q.mu.Unlock()

	if len(ids) > 0 {
		q.flush()
	}
	return len(ids)
}

// Resubmit replaces a terminally failed task with a fresh task carrying the
// same description, priority and work. It returns the new task id.
func (q *Queue) Resubmit(id string) (string, error) {
	q.mu.Lock()
	rec, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if rec.task.Status != TaskStatusFailed || rec.timer != nil {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s is %s", ErrTaskNotFailed, id, rec.task.Status)
	}
	description, priority, work := rec.task.Description, rec.task.Priority, rec.work
	q.removeLocked(id)
	q.enqueueStatusLocked()
	q.mu.Unlock()

	q.flush()

	return q.AddTask(description, priority, WithWork(work)), nil
}

// Close stops all scheduled processing. Tasks added afterwards are recorded
// as failed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, rec := range q.tasks {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
	}
	q.logger.Info("task queue closed")
}

// processTask moves a task into processing and runs one attempt.
func (q *Queue) processTask(id string) {
	q.mu.Lock()
	rec, ok := q.tasks[id]
	if !ok || q.closed {
		q.mu.Unlock()
		return
	}
	rec.timer = nil

	runnable := rec.task.Status == TaskStatusPending || rec.task.Status == TaskStatusFailed
	if !runnable || rec.task.Attempts >= q.cfg.MaxAttempts {
		q.mu.Unlock()
		return
	}

	rec.task.Status = TaskStatusProcessing
	rec.task.Attempts++
	attempt := rec.task.Attempts
	work := rec.work
	description := rec.task.Description
	q.enqueueStatusLocked()

	if work == nil {
		d := EstimateDuration(description, q.jitter)
		rec.timer = q.clock.AfterFunc(d, func() { q.finish(id, attempt, nil) })
	}
	q.mu.Unlock()

	q.flush()

	q.logger.Debug("processing task",
		"task_id", id,
		"attempt", attempt)

	if work != nil {
		q.finish(id, attempt, q.run(id, work))
	}
}

// run executes one attempt of work with a timeout, converting panics into
// errors.
func (q *Queue) run(id string, work Work) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.WorkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task work panicked",
				"task_id", id,
				"panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return work(ctx)
}

// finish records the outcome of an attempt and schedules the follow-up
// (purge or retry).
func (q *Queue) finish(id string, attempt int, err error) {
	q.mu.Lock()
	rec, ok := q.tasks[id]
	if !ok || rec.task.Status != TaskStatusProcessing || rec.task.Attempts != attempt {
		q.mu.Unlock()
		return
	}

	now := q.clock.Now()
	var retryIn time.Duration
	if err == nil {
		rec.task.Status = TaskStatusCompleted
		rec.task.CompletedAt = &now
		rec.task.Error = ""
		if !q.closed {
			rec.timer = q.clock.AfterFunc(q.cfg.PurgeDelay, func() { q.purge(id) })
		}
	} else {
		rec.task.Status = TaskStatusFailed
		rec.task.Error = redact.Error(err)
		if !q.closed && attempt < q.cfg.MaxAttempts && domain.IsRetryable(err) {
			retryIn = q.cfg.RetryBackoff * time.Duration(attempt)
			rec.timer = q.clock.AfterFunc(retryIn, func() { q.processTask(id) })
		} else {
			rec.timer = nil
		}
	}
	snapshot := rec.task
	q.enqueueStatusLocked()
	q.mu.Unlock()

	q.flush()

	switch {
	case err == nil:
		q.logger.Info("task completed", "task_id", id, "attempts", attempt)
		q.announce(snapshot, "task_completed", "Task completed: "+snapshot.Description)
	case retryIn > 0:
		q.logger.Warn("task failed, retry scheduled",
			"task_id", id,
			"attempt", attempt,
			"retry_in", retryIn,
			"error", snapshot.Error)
	default:
		q.logger.Error("task failed permanently",
			"task_id", id,
			"attempts", attempt,
			"error", snapshot.Error)
		q.announce(snapshot, "task_failed", snapshot.Error)
		if q.notifier != nil {
			q.notifier.Send(context.Background(),
				fmt.Sprintf("Task failed: %s. %s", snapshot.Description, domain.UserMessage(err)),
				notify.LevelError)
		}
	}
}

// purge drops a completed task from the live set.
func (q *Queue) purge(id string) {
	q.mu.Lock()
	rec, ok := q.tasks[id]
	if !ok || rec.task.Status != TaskStatusCompleted {
		q.mu.Unlock()
		return
	}
	rec.timer = nil
	q.removeLocked(id)
	q.enqueueStatusLocked()
	q.mu.Unlock()

	q.flush()
	q.logger.Debug("completed task purged", "task_id", id)
}

func (q *Queue) removeLocked(id string) bool {
	rec, ok := q.tasks[id]
	if !ok {
		return false
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(q.tasks, id)
	for i, other := range q.order {
		if other == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) statusLocked() QueueStatus {
	var s QueueStatus
	for _, rec := range q.tasks {
		switch rec.task.Status {
		case TaskStatusPending:
			s.Pending++
		case TaskStatusProcessing:
			s.Processing++
		case TaskStatusCompleted:
			s.Completed++
		case TaskStatusFailed:
			s.Failed++
		}
	}
	return s
}

// enqueueStatusLocked records a status snapshot for delivery. Snapshots are
// taken under mu so their order matches mutation order.
func (q *Queue) enqueueStatusLocked() {
	q.outbox = append(q.outbox, q.statusLocked())
}

// flush delivers queued snapshots. Only one goroutine delivers at a time;
// a caller that finds delivery in progress leaves its snapshot for the
// active deliverer, which re-checks the outbox before returning. This also
// makes mutations from inside a subscriber safe.
func (q *Queue) flush() {
	for {
		if !q.deliverMu.TryLock() {
			return
		}

		q.mu.Lock()
		batch := q.outbox
		q.outbox = nil
		q.mu.Unlock()

		for _, status := range batch {
			q.subs.Notify(status)
		}
		q.deliverMu.Unlock()

		q.mu.Lock()
		more := len(q.outbox) > 0
		q.mu.Unlock()
		if !more {
			return
		}
	}
}

func (q *Queue) announce(t Task, kind, message string) {
	if q.notifier == nil {
		return
	}
	q.notifier.AnnounceTask(context.Background(), notify.TaskEvent{
		Kind:        kind,
		TaskID:      t.ID,
		Description: t.Description,
		Priority:    string(t.Priority),
		Message:     message,
	})
}
