// Package services defines shared error markers and context helpers used by
// the matching, dispatch, and batch packages.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is regardless of where they were raised.
//   - Context helpers that stamp batch identifiers and study UIDs for logging.
package services
