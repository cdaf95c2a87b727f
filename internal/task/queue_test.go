package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/fesoni/internal/clock"
	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// recordingNotifier captures notifications sent by the queue.
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []string
	events []notify.TaskEvent
}

func (n *recordingNotifier) Send(_ context.Context, message string, level notify.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, string(level)+": "+message)
}

func (n *recordingNotifier) AnnounceTask(_ context.Context, ev notify.TaskEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) eventKinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func newTestQueue(t *testing.T) (*Queue, *clock.Manual, *recordingNotifier) {
	t.Helper()

	clk := clock.NewManual(epoch)
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(DefaultConfig(), clk, notifier, logger)
	q.jitter = func(int64) int64 { return 0 }
	return q, clk, notifier
}

func succeed(context.Context) error { return nil }

func TestQueue_AddTaskDefersProcessing(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	ran := false

	id := q.AddTask("openai-analysis", PriorityHigh, WithWork(func(context.Context) error {
		ran = true
		return nil
	}))

	task, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Zero(t, task.Attempts)
	assert.Equal(t, epoch, task.CreatedAt)
	assert.Regexp(t, `^task-[0-9a-f-]{36}$`, id)
	assert.False(t, ran, "work must not run inside AddTask")

	clk.Advance(0)

	task, _ = q.Get(id)
	assert.True(t, ran)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, epoch, *task.CompletedAt)
}

func TestQueue_IDsAreUnique(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := q.AddTask("task", PriorityNormal)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestQueue_RetriesWithLinearBackoffUpToCeiling(t *testing.T) {
	t.Parallel()

	q, clk, notifier := newTestQueue(t)
	var calls atomic.Int32
	id := q.AddTask("amazon-search", PriorityNormal, WithWork(func(context.Context) error {
		calls.Add(1)
		return fmt.Errorf("search: %w", domain.ErrServiceUnavailable)
	}))

	clk.Advance(0)
	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)

	// First retry after 5s * 1
	clk.Advance(5*time.Second - time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	clk.Advance(time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())

	// Second retry after 5s * 2
	clk.Advance(10*time.Second - time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
	clk.Advance(time.Millisecond)
	assert.EqualValues(t, 3, calls.Load())

	task, _ = q.Get(id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, 3, task.Attempts)
	assert.NotEmpty(t, task.Error)

	// Terminal: nothing left scheduled, never re-enters processing
	assert.Zero(t, clk.Pending())
	clk.Advance(time.Hour)
	task, _ = q.Get(id)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, TaskStatusFailed, task.Status)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "error: Task failed: amazon-search")
	assert.Contains(t, notifier.eventKinds(), "task_failed")
}

func TestQueue_ConfigurationErrorIsTerminal(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	id := q.AddTask("document-generation", PriorityNormal, WithWork(func(context.Context) error {
		return fmt.Errorf("missing api key: %w", domain.ErrConfiguration)
	}))

	clk.Advance(time.Hour)

	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
}

func TestQueue_RetrySucceeds(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	var calls atomic.Int32
	id := q.AddTask("flaky", PriorityNormal, WithWork(func(context.Context) error {
		if calls.Add(1) == 1 {
			return domain.ErrTimeout
		}
		return nil
	}))

	clk.Advance(5 * time.Second)

	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Empty(t, task.Error)
}

func TestQueue_PurgesCompletedTasksAfterDelay(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	id := q.AddTask("quick", PriorityLow, WithWork(succeed))

	clk.Advance(0)
	assert.Equal(t, QueueStatus{Completed: 1}, q.GetStatus())

	clk.Advance(30*time.Second - time.Nanosecond)
	_, ok := q.Get(id)
	assert.True(t, ok, "must not be purged before 30s")
	assert.Equal(t, 1, q.GetStatus().Completed)

	clk.Advance(time.Nanosecond)
	_, ok = q.Get(id)
	assert.False(t, ok)
	assert.Equal(t, QueueStatus{}, q.GetStatus())
}

func TestQueue_SimulatedDuration(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	id := q.AddTask("amazon-search: cottagecore", PriorityNormal)

	clk.Advance(0)
	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusProcessing, task.Status)

	clk.Advance(2*time.Second - time.Millisecond)
	task, _ = q.Get(id)
	assert.Equal(t, TaskStatusProcessing, task.Status)

	clk.Advance(time.Millisecond)
	task, _ = q.Get(id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
}

func TestQueue_BroadcastsEveryMutationInOrder(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	var got []QueueStatus
	unsubscribe := q.OnStatusChange(func(s QueueStatus) { got = append(got, s) })

	q.AddTask("a", PriorityNormal, WithWork(succeed))
	q.AddTask("b", PriorityNormal, WithWork(func(context.Context) error {
		return fmt.Errorf("bad config: %w", domain.ErrConfiguration)
	}))
	clk.Advance(0)

	want := []QueueStatus{
		{Pending: 1},
		{Pending: 2},
		{Pending: 1, Processing: 1},
		{Pending: 1, Completed: 1},
		{Processing: 1, Completed: 1},
		{Completed: 1, Failed: 1},
	}
	assert.Equal(t, want, got)

	unsubscribe()
	q.AddTask("c", PriorityNormal, WithWork(succeed))
	clk.Advance(time.Minute)
	assert.Len(t, got, len(want), "no deliveries after unsubscribe")
}

func TestQueue_MultipleSubscribersAndPanics(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t)
	var order []string

	q.OnStatusChange(func(QueueStatus) { order = append(order, "first") })
	q.OnStatusChange(func(QueueStatus) { panic("subscriber bug") })
	q.OnStatusChange(func(QueueStatus) { order = append(order, "third") })

	assert.NotPanics(t, func() { q.AddTask("x", PriorityNormal) })
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestQueue_SubscriberMayEnqueue(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQueue(t)
	var got []int
	added := false

	q.OnStatusChange(func(s QueueStatus) {
		got = append(got, s.Total())
		if !added {
			added = true
			q.AddTask("follow-up", PriorityNormal)
		}
	})

	q.AddTask("first", PriorityNormal)
	assert.Equal(t, []int{1, 2}, got)
}

func TestQueue_StatusCountsMatchLiveTasks(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	check := func() {
		t.Helper()
		assert.Equal(t, len(q.List()), q.GetStatus().Total())
	}

	for i := 0; i < 5; i++ {
		q.AddTask(fmt.Sprintf("ok-%d", i), PriorityNormal, WithWork(succeed))
		check()
	}
	for i := 0; i < 3; i++ {
		q.AddTask(fmt.Sprintf("bad-%d", i), PriorityNormal, WithWork(func(context.Context) error {
			return errors.New("boom")
		}))
		check()
	}
	q.AddTask("openai-analysis", PriorityNormal)
	check()

	for _, step := range []time.Duration{0, time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second} {
		clk.Advance(step)
		check()
	}

	assert.Equal(t, QueueStatus{Failed: 3}, q.GetStatus())
}

func TestQueue_WorkPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	id := q.AddTask("panicky", PriorityNormal, WithWork(func(context.Context) error {
		panic("nil map")
	}))

	clk.Advance(0)
	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "task panicked")
}

func TestQueue_ClearAndResubmit(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	var calls atomic.Int32
	failing := func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	}

	failedID := q.AddTask("will fail", PriorityHigh, WithWork(failing))
	pendingID := q.AddTask("pending", PriorityNormal, WithWork(succeed))

	// Nothing to resubmit while pending
	_, err := q.Resubmit(pendingID)
	assert.ErrorIs(t, err, ErrTaskNotFailed)
	_, err = q.Resubmit("task-missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	clk.Advance(15 * time.Second)
	task, _ := q.Get(failedID)
	require.Equal(t, 3, task.Attempts)

	newID, err := q.Resubmit(failedID)
	require.NoError(t, err)
	assert.NotEqual(t, failedID, newID)
	_, ok := q.Get(failedID)
	assert.False(t, ok)

	resubmitted, ok := q.Get(newID)
	require.True(t, ok)
	assert.Equal(t, TaskStatusPending, resubmitted.Status)
	assert.Equal(t, PriorityHigh, resubmitted.Priority)
	assert.Zero(t, resubmitted.Attempts)

	clk.Advance(15 * time.Second)
	assert.EqualValues(t, 6, calls.Load())

	// The completed task was purged at 30s
	_, ok = q.Get(pendingID)
	assert.False(t, ok)

	otherID := q.AddTask("other", PriorityNormal)
	assert.Equal(t, 1, q.ClearFailed())
	assert.True(t, q.Clear(otherID))
	assert.False(t, q.Clear(otherID))
	assert.Equal(t, QueueStatus{}, q.GetStatus())
}

func TestQueue_ClearCancelsScheduledRetry(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	var calls atomic.Int32
	id := q.AddTask("retrying", PriorityNormal, WithWork(func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	}))

	clk.Advance(0)
	assert.Equal(t, 0, q.ClearFailed(), "retry still scheduled")
	require.True(t, q.Clear(id))

	clk.Advance(time.Minute)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueue_Close(t *testing.T) {
	t.Parallel()

	q, clk, _ := newTestQueue(t)
	ran := false
	q.AddTask("before close", PriorityNormal, WithWork(func(context.Context) error {
		ran = true
		return nil
	}))

	q.Close()
	id := q.AddTask("after close", PriorityNormal)
	clk.Advance(time.Minute)

	assert.False(t, ran)
	task, _ := q.Get(id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, ErrQueueClosed.Error(), task.Error)
}

func TestQueue_ConcurrentUseWithRealClock(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PurgeDelay = time.Hour
	q := NewQueue(cfg, clock.Real{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer q.Close()

	var broadcasts atomic.Int32
	q.OnStatusChange(func(QueueStatus) { broadcasts.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.AddTask("concurrent", PriorityNormal, WithWork(succeed))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return q.GetStatus().Completed == 20
	}, 5*time.Second, 5*time.Millisecond)

	// enqueue + processing + completed for each task
	require.Eventually(t, func() bool {
		return broadcasts.Load() == 60
	}, time.Second, 5*time.Millisecond)
}

func TestQueue_AddTaskAnnouncesEnqueueSnapshot(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PurgeDelay = time.Hour
	notifier := &recordingNotifier{}
	q := NewQueue(cfg, clock.Real{}, notifier, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer q.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.AddTask("amazon-search", PriorityHigh, WithWork(succeed))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return q.GetStatus().Completed == n
	}, 5*time.Second, 5*time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	created := 0
	for _, ev := range notifier.events {
		if ev.Kind != "task_created" {
			continue
		}
		created++
		assert.Equal(t, string(PriorityHigh), ev.Priority)
		assert.Equal(t, "amazon-search", ev.Description)
	}
	assert.Equal(t, n, created)
}

func TestEstimateDuration(t *testing.T) {
	t.Parallel()

	maxJitter := func(n int64) int64 { return n - 1 }
	noJitter := func(int64) int64 { return 0 }

	tests := []struct {
		description string
		min, max    time.Duration
	}{
		{"amazon-search: boho", 2 * time.Second, 5 * time.Second},
		{"openai-analysis", 1500 * time.Millisecond, 3500 * time.Millisecond},
		{"document-generation: style guide", 3 * time.Second, 7 * time.Second},
		{"something else", time.Second, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.min, EstimateDuration(tt.description, noJitter))
			assert.Equal(t, tt.max-time.Nanosecond, EstimateDuration(tt.description, maxJitter))
		})
	}
}
