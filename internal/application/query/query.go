// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/xp"
	"github.com/practica-musical/progression-hub/pkg/logger"
)

// Options carries the collaborators every query handler shares.
type Options struct {
	Logger *logger.Logger

	// Windows holds the default lookback periods and caps.
	Windows xp.Windows

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Windows == (xp.Windows{}) {
		o.Windows = xp.DefaultWindows()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// resolveWindow applies the default to an unset window. Negative windows are
// passed through so xp.Since rejects them.
func resolveWindow(days, fallback int) int {
	if days == 0 {
		return fallback
	}
	return days
}
