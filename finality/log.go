package finality

import (
	"github.com/decred/slog"

	"github.com/time-coin/timecoin/build"
)

// defaultLog is the logger new Coordinators use when WithLogger is not
// passed explicitly.
var defaultLog = build.NewSubLogger("FNLT", nil)

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(slog.Disabled)
}

// UseLogger sets the logger future Coordinators default to.
func UseLogger(logger slog.Logger) {
	defaultLog = logger
}
