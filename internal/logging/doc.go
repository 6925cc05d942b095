// Package logging assembles structured slog loggers and formatting helpers used
// across studypair.
//
// It owns the console and JSON handlers, fans records out to the terminal and
// the batch log file, and exposes context-aware helpers so matching and
// dispatch code can tag log lines with batch identifiers and study UIDs. A
// no-op logger is provided for tests and wiring code that cannot fail.
package logging
