// Package task manages fire-and-forget background work and broadcasts the
// aggregate queue status to subscribers on every mutation. Tasks live only
// in memory: completed tasks are purged after a fixed delay, failed tasks are
// retried with linear backoff up to an attempt ceiling and then kept until
// they are cleared or resubmitted.
package task
