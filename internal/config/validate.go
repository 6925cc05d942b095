package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateJob(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateDispatch ensures the settings required to launch jobs are present.
// Matching-only commands skip this check.
func (c *Config) ValidateDispatch() error {
	if strings.TrimSpace(c.Job.Binary) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("job.binary is required. Set STUDYPAIR_BINARY, pass --binary, or edit %s (create with 'studypair config init')", defaultPath)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateJob() error {
	if c.Job.Concurrency < 1 {
		return fmt.Errorf("job.concurrency must be at least 1, got %d", c.Job.Concurrency)
	}
	if c.Job.PollIntervalMillis <= 0 {
		return errors.New("job.poll_interval_ms must be positive")
	}
	switch c.Job.Probe {
	case ProbeProcessTable, ProbeHandle:
	default:
		return fmt.Errorf("job.probe: unsupported value %q (want %q or %q)", c.Job.Probe, ProbeProcessTable, ProbeHandle)
	}
	if c.Scan.Workers < 1 {
		return errors.New("scan.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
