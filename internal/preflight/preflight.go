package preflight

import (
	"context"

	"studypair/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are reported but never block a batch.
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckJobBinary(cfg.Job.Binary))
	results = append(results, CheckRuleFile(cfg.Paths.RuleFile))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckHistoryLedger(ctx, cfg.Paths.HistoryDB))

	// The process table is only consulted by the default probe.
	if cfg.Job.Probe == config.ProbeProcessTable {
		results = append(results, CheckProcessTable(procRoot, cfg.Job.Binary))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
