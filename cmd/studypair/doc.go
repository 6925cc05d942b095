// Package main hosts the studypair CLI entrypoint and command graph.
//
// The Cobra-based command tree scans input directories, prints the
// classified series and the pairs the matcher would form, dispatches a batch
// to the external job, and inspects the history ledger. It centralizes
// configuration resolution, flag overrides, and logging setup so subcommands
// can focus on output instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
