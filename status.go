package entrywatch

import "github.com/jpalmerr/entrywatch/internal/store"

// Status is the registration state last observed on a target's page.
//
// Status is a string type so it serialises to JSON and logs in a readable
// form. [StatusNever] is only ever stored, never produced by an extractor.
type Status string

const (
	// StatusNever marks a target that has not completed a poll yet.
	StatusNever Status = store.StatusNever

	// StatusOpen means entries are being accepted.
	StatusOpen Status = "OPEN"

	// StatusClosed means entries are not (yet) accepted.
	StatusClosed Status = "CLOSED"

	// StatusFull means entries exist but every slot is taken.
	StatusFull Status = "FULL"

	// StatusError means the page could not be fetched.
	StatusError Status = "ERROR"

	// StatusUnknown means the page was fetched but nothing conclusive was found.
	StatusUnknown Status = "UNKNOWN"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNever, StatusOpen, StatusClosed, StatusFull, StatusError, StatusUnknown:
		return true
	}
	return false
}

// SlotsUnknown is the slot count of an observation that found no counter.
const SlotsUnknown = store.SlotsUnknown

// Observation is what one poll learned about a page.
type Observation struct {
	Status Status
	Slots  int // free slots, or SlotsUnknown
}

// Unknown is the observation an extractor returns for unparseable content.
var Unknown = Observation{Status: StatusUnknown, Slots: SlotsUnknown}

// atCapacity reports whether the observation shows no free slot.
func (o Observation) atCapacity() bool {
	return o.Slots == 0 || o.Status == StatusFull
}

// Extractor turns a fetched page body into an [Observation].
//
// Extractors must be pure: the same body always yields the same observation,
// with no side effects, so the engine can call them inline on every poll.
// Content that cannot be interpreted yields [Unknown].
//
// # Panic Safety
//
// Extractors are called within a panic recovery boundary. A panicking
// extractor records [StatusUnknown] with an error carrying a correlation ID;
// the full stack trace is logged server-side. One misbehaving extractor
// cannot stop the engine or other targets.
type Extractor func(body []byte) Observation
