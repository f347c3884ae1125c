package entrywatch

// Transition classifies the change between two consecutive observations.
type Transition string

const (
	TransitionNone            Transition = "NONE"
	TransitionBecameOpen      Transition = "BECAME_OPEN"
	TransitionBecameAvailable Transition = "BECAME_AVAILABLE"
	TransitionRecovered       Transition = "RECOVERED"
	TransitionBecameError     Transition = "BECAME_ERROR"
	TransitionStillError      Transition = "STILL_ERROR"
)

// AlertKind names the newsworthy event an alert reports.
type AlertKind string

const (
	// AlertContestOpen reports a registration page that started accepting entries.
	AlertContestOpen AlertKind = "contestOpen"

	// AlertSlotAvailable reports a full event that gained a free slot.
	AlertSlotAvailable AlertKind = "slotAvailable"
)

// Classify compares the previous and the new observation of a target.
//
// Rules, first match wins:
//   - new is ERROR: BECAME_ERROR, or STILL_ERROR when prev was already ERROR
//   - prev is ERROR or UNKNOWN and new is OPEN, CLOSED or FULL: RECOVERED
//   - prev is not OPEN and new is OPEN: BECAME_OPEN
//   - prev had no free slot and new has some: BECAME_AVAILABLE
//   - anything else: NONE
//
// Slot alerts are edge-triggered: going from 1 to 2 free slots is NONE.
//
// Recovery wins over opening: a page that reads OPEN on the first successful
// poll after an ERROR or UNKNOWN reading yields RECOVERED, which never alerts.
// An opening that coincides with an outage or an unreadable page therefore
// goes unannounced; the target still shows OPEN in the store.
func Classify(prev, next Observation) Transition {
	if next.Status == StatusError {
		if prev.Status == StatusError {
			return TransitionStillError
		}
		return TransitionBecameError
	}

	if prev.Status == StatusError || prev.Status == StatusUnknown {
		switch next.Status {
		case StatusOpen, StatusClosed, StatusFull:
			return TransitionRecovered
		}
	}

	if prev.Status != StatusOpen && next.Status == StatusOpen {
		return TransitionBecameOpen
	}

	if prev.atCapacity() && next.Slots > 0 {
		return TransitionBecameAvailable
	}

	return TransitionNone
}

// ClassifyTarget is [Classify] refined by the kind of the target.
//
// An event page reads OPEN whenever it offers an entry form, even when every
// slot is taken, so for [KindEvent] an opening is only news when it comes with
// room: BECAME_OPEN turns into BECAME_AVAILABLE, or NONE when the page shows
// no free slot. Contest targets are classified as is.
func ClassifyTarget(kind Kind, prev, next Observation) Transition {
	tr := Classify(prev, next)
	if kind != KindEvent || tr != TransitionBecameOpen {
		return tr
	}
	if next.Slots == 0 {
		return TransitionNone
	}
	return TransitionBecameAvailable
}

// Qualifies reports whether the transition should raise an alert.
func (t Transition) Qualifies() bool {
	return t == TransitionBecameOpen || t == TransitionBecameAvailable
}

// AlertKind maps a qualifying transition to its alert kind, or "". It is the
// fallback for targets without a kind; see [Kind.AlertKind].
func (t Transition) AlertKind() AlertKind {
	switch t {
	case TransitionBecameOpen:
		return AlertContestOpen
	case TransitionBecameAvailable:
		return AlertSlotAvailable
	default:
		return ""
	}
}

// String returns the string representation of the transition.
func (t Transition) String() string {
	return string(t)
}

// AlertKind returns the alert kind raised by a qualifying transition on a
// target of kind k: contests announce openings, events announce free slots.
// It returns "" for transitions that do not qualify.
func (k Kind) AlertKind(t Transition) AlertKind {
	if !t.Qualifies() {
		return ""
	}
	switch k {
	case KindContest:
		return AlertContestOpen
	case KindEvent:
		return AlertSlotAvailable
	default:
		return t.AlertKind()
	}
}
