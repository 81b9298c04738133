package subscription

import (
	"github.com/decred/slog"

	"github.com/time-coin/timecoin/build"
)

// defaultLog is the logger new Fanouts use when NewFanout is passed nil.
var defaultLog = build.NewSubLogger("SUBS", nil)

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(slog.Disabled)
}

// UseLogger sets the logger future Fanouts default to.
func UseLogger(logger slog.Logger) {
	defaultLog = logger
}
