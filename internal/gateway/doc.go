// Package gateway routes every outbound call to a remote service through a
// uniform envelope: the logical service is resolved from the endpoint, the
// service's rate-limit budget is checked, the call is tagged with a unique
// request id and bounded by a timeout, latency is folded into the router's
// metrics, and failures are classified into the domain error taxonomy and
// returned to the caller.
package gateway
