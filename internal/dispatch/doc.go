// Package dispatch feeds matched pairs to the external processing job with a
// bounded number of jobs running at once.
//
// The Dispatcher is a single control loop. It never waits on a job it
// launched; instead it asks a Supervisor how many jobs are running and
// admits the next pair, in list order, whenever that count is below the
// limit. Two supervisors are provided: ProcessTable counts every process on
// the host bearing the job binary's name, Handle counts only the children it
// started and has not yet reaped.
package dispatch
