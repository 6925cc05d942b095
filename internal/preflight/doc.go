// Package preflight provides readiness checks for the job binary, the rule
// file, and the filesystem paths a batch depends on.
//
// These checks run in two contexts:
//   - The CLI "studypair check" command runs RunAll and renders every result.
//   - "studypair run" runs RunAll before scanning and refuses to start when a
//     required check fails, so a doomed batch never takes the output lock.
package preflight
