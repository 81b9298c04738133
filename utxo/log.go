package utxo

import (
	"github.com/decred/slog"

	"github.com/time-coin/timecoin/build"
)

// log is initialized with no output filters, so the package does no
// logging by default until the daemon calls UseLogger.
var log = build.NewSubLogger("UTXO", nil)

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(slog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}
