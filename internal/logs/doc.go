// Package logs reads and follows studypair's append-only log files: the
// application log, the progress CSV, and the error block log.
package logs
