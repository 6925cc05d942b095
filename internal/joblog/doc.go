// Package joblog writes the batch's append-only progress and error logs.
//
// Both sinks reopen their file for every write so that other processes can
// rotate or tail them. An open that keeps failing is retried a fixed number
// of times and the write is then dropped with ErrSinkUnavailable; a sink
// never stalls the dispatcher beyond that budget.
package joblog
