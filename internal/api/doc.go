// Package api exposes the task queue, notifications and shopping pipelines
// over HTTP. It translates requests into calls on the queue and the
// orchestrator and streams status changes and notifications to clients as
// server-sent events.
package api
