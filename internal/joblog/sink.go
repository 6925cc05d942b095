package joblog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"studypair/internal/logging"
)

// ErrSinkUnavailable reports a write dropped because the log file could not
// be opened within the retry budget.
var ErrSinkUnavailable = errors.New("log sink unavailable")

const (
	defaultOpenAttempts = 5
	defaultRetryDelay   = 50 * time.Millisecond
)

// Options configures file opening for both sinks.
type Options struct {
	OpenAttempts int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// appender serializes appends to one file.
type appender struct {
	path     string
	attempts int
	delay    time.Duration
	logger   *slog.Logger
	sleep    func(time.Duration)
	mu       sync.Mutex
}

func newAppender(path string, opts Options, component string) *appender {
	attempts := opts.OpenAttempts
	if attempts <= 0 {
		attempts = defaultOpenAttempts
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &appender{
		path:     path,
		attempts: attempts,
		delay:    delay,
		logger:   logging.NewComponentLogger(opts.Logger, component),
		sleep:    time.Sleep,
	}
}

// write opens the file, hands it to fn and closes it. An empty path
// disables the sink.
func (a *appender) write(fn func(*os.File) error) error {
	if a == nil || a.path == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		a.logger.Debug("log write dropped",
			logging.String("path", a.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "sink_unavailable"),
		)
		return err
	}
	writeErr := fn(f)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("append %s: %w", a.path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", a.path, closeErr)
	}
	return nil
}

func (a *appender) open() (*os.File, error) {
	var lastErr error
	for attempt := 0; attempt < a.attempts; attempt++ {
		if attempt > 0 {
			a.sleep(a.delay)
		}
		if dir := filepath.Dir(a.path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				lastErr = err
				continue
			}
		}
		f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			return f, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrSinkUnavailable, a.path, a.attempts, lastErr)
}
