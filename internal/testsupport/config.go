package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"studypair/internal/config"
	"studypair/internal/rules"
)

// StubJobName is the executable name WithStubbedJob installs.
const StubJobName = "studypair-stub-job"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	logDir := filepath.Join(base, "logs")
	cfgVal.Paths = config.Paths{
		RuleFile:    filepath.Join(base, "rules.xml"),
		OutputDir:   filepath.Join(base, "output"),
		LogDir:      logDir,
		ProgressLog: filepath.Join(logDir, "progress.csv"),
		ErrorLog:    filepath.Join(logDir, "errors.log"),
		HistoryDB:   filepath.Join(logDir, "history.db"),
	}
	cfgVal.Job.PollIntervalMillis = 5
	cfgVal.Job.Probe = config.ProbeHandle
	cfgVal.Sinks.OpenRetryMillis = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSampleRules writes the bundled sample rule file to the config's rule
// path.
func WithSampleRules() ConfigOption {
	return func(b *configBuilder) {
		if err := rules.WriteSample(b.cfg.Paths.RuleFile); err != nil {
			b.t.Fatalf("write sample rules: %v", err)
		}
	}
}

// WithRules writes the given XML document as the rule file.
func WithRules(xml string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Paths.RuleFile, []byte(xml), 0o644); err != nil {
			b.t.Fatalf("write rules: %v", err)
		}
	}
}

// WithConcurrency overrides the job concurrency limit.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Job.Concurrency = n
	}
}

// WithStubbedJob writes a stub job executable running script and points
// job.binary at it. An empty script exits successfully.
func WithStubbedJob(script string) ConfigOption {
	return func(b *configBuilder) {
		if script == "" {
			script = "exit 0"
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, StubJobName)
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", StubJobName, err)
		}
		b.cfg.Job.Binary = target
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "path-bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
