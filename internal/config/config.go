package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations used by a batch run.
type Paths struct {
	RuleFile    string `toml:"rule_file"`
	OutputDir   string `toml:"output_dir"`
	LogDir      string `toml:"log_dir"`
	ProgressLog string `toml:"progress_log"`
	ErrorLog    string `toml:"error_log"`
	HistoryDB   string `toml:"history_db"`
}

// Job describes the external single-study processing job.
type Job struct {
	Workflow           string   `toml:"workflow"`
	Binary             string   `toml:"binary"`
	Args               []string `toml:"args"`
	Concurrency        int      `toml:"concurrency"`
	PollIntervalMillis int      `toml:"poll_interval_ms"`
	// Probe selects how running jobs are counted: "process_table" scans the
	// OS process table by executable name, "handle" counts launched children.
	Probe string `toml:"probe"`
}

// Scan contains configuration for metadata extraction from input folders.
type Scan struct {
	Workers             int      `toml:"workers"`
	Extensions          []string `toml:"extensions"`
	VolumetricMinSlices int      `toml:"volumetric_min_slices"`
}

// Sinks contains the open-retry budget for the progress and error logs.
type Sinks struct {
	OpenAttempts    int `toml:"open_attempts"`
	OpenRetryMillis int `toml:"open_retry_ms"`
}

// Notifications configures batch event delivery to ntfy.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_s"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for studypair.
//
// Configuration sections by subsystem:
//   - Paths: rule file, output directory, logs, and history database
//   - Job: external job binary, argument template, and concurrency ceiling
//   - Scan: input folder scanning and volumetric classification
//   - Sinks: progress/error log open-retry budget
//   - Notifications: optional ntfy topic for batch events
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Job           Job           `toml:"job"`
	Scan          Scan          `toml:"scan"`
	Sinks         Sinks         `toml:"sinks"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("studypair.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the dispatcher's capacity re-probe quantum.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Job.PollIntervalMillis) * time.Millisecond
}

// SinkRetryDelay returns the delay between log-file open attempts.
func (c *Config) SinkRetryDelay() time.Duration {
	return time.Duration(c.Sinks.OpenRetryMillis) * time.Millisecond
}

// LockPath returns the path of the exclusive batch lock for the output directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.OutputDir, ".studypair.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}
