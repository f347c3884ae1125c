// Package store holds the authoritative set of watched targets.
//
// This package is internal to entrywatch. It owns every target's parameters and
// last-known state, and is the single shared mutable resource of the engine:
// the scheduler, the transition pipeline and the admin surface all go through
// its atomic operations.
//
// The main components are:
//
//   - [Store]: Interface defining the target operations and change feed
//   - [MemoryStore]: Lock-protected in-memory implementation with pub/sub
//   - [Record]: Storage representation of one target
//
// Subscribers receive [Event] values via channels with non-blocking sends
// (slow subscribers miss events rather than stall a poll).
package store
