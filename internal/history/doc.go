// Package history persists a ledger of batch runs and their dispatch
// decisions in SQLite.
//
// Every run is stored with its inputs, counts, and outcome; every pair the
// dispatcher decides on is stored with its status. The ledger backs the
// `history` command and lets operators answer which studies a given batch
// handed to the job.
package history
