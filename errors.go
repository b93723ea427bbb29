package screenshot

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the library.
var (
	// ErrClosed is returned when attempting to use a closed [Service].
	ErrClosed = errors.New("screenshot: service is closed")
)

// ValidationError reports a request or configuration value the caller must
// fix. It is returned before any browser work starts, so a capture that
// fails validation has no side effects.
type ValidationError struct {
	Field  string // offending field, e.g. "tiles.overlap"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("screenshot: invalid %s: %s", e.Field, e.Reason)
}

// GridOverflowError is returned by [PlanTiles] when covering the page would
// take more tiles than the configured ceiling. No partial plan is produced
// and the grid is never silently clamped; the caller decides whether to
// raise the ceiling, enlarge the tiles, or capture a smaller region.
type GridOverflowError struct {
	Required int // tiles needed to cover the page
	Allowed  int // the configured ceiling
}

func (e *GridOverflowError) Error() string {
	return fmt.Sprintf("screenshot: page requires %d tiles but max tile count is %d; increase the limit or use larger tiles", e.Required, e.Allowed)
}
