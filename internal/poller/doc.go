// Package poller provides the fetch and scheduling machinery for entrywatch.
//
// This package is internal to entrywatch. It knows nothing about statuses or
// alerts: it fetches URLs and runs opaque polling jobs on time.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [FetchError]: Typed fetch failure (timeout, network, http)
//   - [Scheduler]: One timer-driven cycle per job with skew correction
//   - [Job]: Interval function plus poll callback for one target
//
// Users of the entrywatch library should not need to interact with this
// package directly. Configuration is done through the main entrywatch package.
package poller
