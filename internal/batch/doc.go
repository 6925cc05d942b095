// Package batch runs one pairing batch end to end.
//
// A Runner scans the input directories, classifies the series, loads the
// rule file, matches pairs, and hands them to the dispatcher. Dispatching
// runs under an exclusive lock on the output directory and every run is
// recorded in the history ledger. Plan performs the same steps up to
// matching without locking or launching anything, for dry runs.
package batch
