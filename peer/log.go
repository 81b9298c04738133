package peer

import (
	"github.com/decred/slog"

	"github.com/time-coin/timecoin/build"
)

var log = build.NewSubLogger("PEER", nil)

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(slog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}
