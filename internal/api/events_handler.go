package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/fesoni/internal/notify"
	"github.com/phrazzld/fesoni/internal/platform/logger"
	"github.com/phrazzld/fesoni/internal/task"
)

// SSE event names
const (
	EventStatus       = "status"
	EventNotification = "notification"
)

// eventBuffer bounds the events queued for one slow client. Events beyond
// it are dropped so that a stalled client never blocks the queue.
const eventBuffer = 32

// keepAliveInterval is the period of SSE comment lines sent to idle clients.
const keepAliveInterval = 15 * time.Second

type sseEvent struct {
	name string
	data any
}

// sseSink writes server-sent events to an HTTP response.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// Send writes one named event with a JSON payload and flushes it.
func (s sseSink) Send(ev sseEvent) error {
	b, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.name, b); err != nil {
		return err
	}
	return s.rc.Flush()
}

// KeepAlive writes a comment line and flushes it.
func (s sseSink) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Events handles GET /api/events. The stream starts with the current queue
// status and then carries every status change and notification until the
// client disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := sseSink{w: w, rc: http.NewResponseController(w)}

	events := make(chan sseEvent, eventBuffer)
	offer := func(ev sseEvent) {
		select {
		case events <- ev:
		default:
			log.Warn("dropping event for slow client", "event", ev.name)
		}
	}
	unsubStatus := h.tasks.OnStatusChange(func(s task.QueueStatus) {
		offer(sseEvent{EventStatus, newQueueStatusResponse(s)})
	})
	defer unsubStatus()
	unsubNotify := h.notifications.OnNotification(func(n notify.Notification) {
		offer(sseEvent{EventNotification, n})
	})
	defer unsubNotify()

	if err := sink.Send(sseEvent{EventStatus, newQueueStatusResponse(h.tasks.GetStatus())}); err != nil {
		log.Debug("event stream closed", "error", err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			err = sink.Send(ev)
		case <-keepAlive.C:
			err = sink.KeepAlive()
		}
		if err != nil {
			log.Debug("event stream closed", "error", err)
			return
		}
	}
}
