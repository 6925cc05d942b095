package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeJob(); err != nil {
		return err
	}
	c.normalizeScan()
	c.normalizeSinks()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RuleFile) == "" {
		c.Paths.RuleFile = defaultRuleFile
	}
	if c.Paths.RuleFile, err = expandPath(c.Paths.RuleFile); err != nil {
		return fmt.Errorf("paths.rule_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ProgressLog, err = c.logFile(c.Paths.ProgressLog, defaultProgressLogName); err != nil {
		return fmt.Errorf("paths.progress_log: %w", err)
	}
	if c.Paths.ErrorLog, err = c.logFile(c.Paths.ErrorLog, defaultErrorLogName); err != nil {
		return fmt.Errorf("paths.error_log: %w", err)
	}
	if c.Paths.HistoryDB, err = c.logFile(c.Paths.HistoryDB, defaultHistoryDBName); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

// logFile resolves a log-style path, defaulting to name inside the log directory.
func (c *Config) logFile(value, name string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return filepath.Join(c.Paths.LogDir, name), nil
	}
	return expandPath(value)
}

func (c *Config) normalizeJob() error {
	if value, ok := os.LookupEnv("STUDYPAIR_BINARY"); ok && strings.TrimSpace(c.Job.Binary) == "" {
		c.Job.Binary = value
	}
	if value, ok := os.LookupEnv("STUDYPAIR_CONCURRENCY"); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("STUDYPAIR_CONCURRENCY: %w", err)
		}
		c.Job.Concurrency = n
	}
	c.Job.Binary = strings.TrimSpace(c.Job.Binary)
	if strings.HasPrefix(c.Job.Binary, "~") || strings.ContainsRune(c.Job.Binary, filepath.Separator) {
		expanded, err := expandPath(c.Job.Binary)
		if err != nil {
			return fmt.Errorf("job.binary: %w", err)
		}
		c.Job.Binary = expanded
	}
	c.Job.Workflow = strings.TrimSpace(c.Job.Workflow)
	if c.Job.Workflow == "" {
		c.Job.Workflow = defaultWorkflow
	}
	if len(c.Job.Args) == 0 {
		c.Job.Args = append([]string(nil), defaultJobArgs...)
	}
	if c.Job.PollIntervalMillis <= 0 {
		c.Job.PollIntervalMillis = defaultPollIntervalMillis
	}
	c.Job.Probe = strings.ToLower(strings.TrimSpace(c.Job.Probe))
	if c.Job.Probe == "" {
		c.Job.Probe = defaultProbe
	}
	return nil
}

func (c *Config) normalizeScan() {
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = defaultScanWorkers
	}
	if c.Scan.VolumetricMinSlices <= 0 {
		c.Scan.VolumetricMinSlices = defaultVolumetricMinSlices
	}
	if len(c.Scan.Extensions) == 0 {
		c.Scan.Extensions = append([]string(nil), defaultScanExtensions...)
		return
	}
	exts := make([]string, 0, len(c.Scan.Extensions))
	seen := make(map[string]struct{}, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized != "" && !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Scan.Extensions = exts
}

func (c *Config) normalizeSinks() {
	if c.Sinks.OpenAttempts <= 0 {
		c.Sinks.OpenAttempts = defaultSinkOpenAttempts
	}
	if c.Sinks.OpenRetryMillis < 0 {
		c.Sinks.OpenRetryMillis = defaultSinkOpenRetryMillis
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
