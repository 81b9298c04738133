package timecoin

import "github.com/go-errors/errors"

// ErrShuttingDown is returned by Server methods called after Stop has
// been invoked.
var ErrShuttingDown = errors.New("timecoin: server is shutting down")
