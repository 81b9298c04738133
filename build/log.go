package build

import (
	"io"
	"sync"

	sprt "github.com/jrick/logrotate/rotator"

	"github.com/decred/slog"
)

// LogWriter wraps the underlying rotating log file so that a single
// io.Writer can be handed to a slog backend. The exact byte-level Write
// behavior (stdout, file, or both) is selected by a build-tag-specific file
// in this package; see log_filelog.go.
type LogWriter struct {
	RotatorPipe *io.PipeWriter
}

// RotatingLogWriter is a centralized writer to a logging file that is
// automatically rotated once it exceeds a certain size threshold. It is
// also capable of spawning and tracking sub-loggers keyed off a subsystem
// tag, in the same fashion production masternode daemons do so each
// component's verbosity can be tuned independently.
type RotatingLogWriter struct {
	mu         sync.Mutex
	subLoggers map[string]slog.Logger
	rotator    *sprt.Rotator
	logWriter  *LogWriter
	backend    *slog.Backend
}

// NewRotatingLogWriter creates a new, unstarted, RotatingLogWriter.
func NewRotatingLogWriter() *RotatingLogWriter {
	logWriter := &LogWriter{}
	return &RotatingLogWriter{
		subLoggers: make(map[string]slog.Logger),
		logWriter:  logWriter,
		backend:    slog.NewBackend(logWriter),
	}
}

// InitLogRotator initializes the log file rotator. It should be called
// early during startup, before any subsystem loggers are used.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	rotator, err := sprt.New(
		logFile, int64(maxLogFileSize*1024), false, maxLogFiles,
	)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go rotator.Run(pr)

	r.mu.Lock()
	r.rotator = rotator
	r.logWriter.RotatorPipe = pw
	r.mu.Unlock()

	return nil
}

// GenSubLogger creates a new sub-logger for the given subsystem. It
// satisfies the signature required by slog backends that support
// per-subsystem loggers.
func (r *RotatingLogWriter) GenSubLogger(subsystem string) slog.Logger {
	return r.backend.Logger(subsystem)
}

// NewSubLogger creates a replaceable sub-logger for a subsystem. Before the
// root logger is wired up via SetupLoggers, calls return a disabled logger
// so that package init-time logger variables are never nil.
func NewSubLogger(subsystem string, genLogger func(string) slog.Logger) slog.Logger {
	if genLogger == nil {
		return slog.Disabled
	}
	return genLogger(subsystem)
}

// RegisterSubLogger registers the logger for a subsystem so its level can be
// changed later via SetLogLevel.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subLoggers[subsystem] = logger
}

// SetLogLevel changes the logging level of the subsystem identified by
// subsystemID. It is a no-op if the subsystem is unknown.
func (r *RotatingLogWriter) SetLogLevel(subsystemID string, logLevel string) {
	r.mu.Lock()
	logger, ok := r.subLoggers[subsystemID]
	r.mu.Unlock()
	if !ok {
		return
	}

	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the same logging level across every registered
// subsystem.
func (r *RotatingLogWriter) SetLogLevels(logLevel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	level, _ := slog.LevelFromString(logLevel)
	for _, logger := range r.subLoggers {
		logger.SetLevel(level)
	}
}

// Close flushes and closes the underlying rotator, if any.
func (r *RotatingLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logWriter.RotatorPipe != nil {
		return r.logWriter.RotatorPipe.Close()
	}
	return nil
}
