//go:build !filelog
// +build !filelog

package build

import "os"

// Write sends the bytes to stdout and, once InitLogRotator has been called,
// to the rotating log file pipe. Building with the `filelog` tag swaps this
// out for a file-only writer; see log_filelog.go.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.RotatorPipe != nil {
		return w.RotatorPipe.Write(b)
	}
	return len(b), nil
}
