package entrywatch

import (
	"fmt"

	"github.com/jpalmerr/entrywatch/internal/poller"
	"github.com/jpalmerr/entrywatch/internal/store"
)

// ErrNotFound is returned when an operation names an unknown target ID.
var ErrNotFound = store.ErrNotFound

// ValidationError reports a rejected target definition or request.
// A request that fails validation is never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FetchError is the typed failure of a page fetch. It is recorded into the
// target's LastError and never stops the target's polling cycle.
type FetchError = poller.FetchError

// FetchErrorKind classifies a [FetchError].
type FetchErrorKind = poller.FetchErrorKind

const (
	FetchTimeout = poller.FetchTimeout
	FetchNetwork = poller.FetchNetwork
	FetchHTTP    = poller.FetchHTTP
)
