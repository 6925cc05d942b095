package config

const (
	defaultConfigPath          = "~/.config/studypair/config.toml"
	defaultRuleFile            = "~/.config/studypair/rules.xml"
	defaultOutputDir           = "~/.local/share/studypair/output"
	defaultLogDir              = "~/.local/share/studypair/logs"
	defaultProgressLogName     = "progress.csv"
	defaultErrorLogName        = "errors.log"
	defaultHistoryDBName       = "history.db"
	defaultWorkflow            = "default"
	defaultConcurrency         = 2
	defaultPollIntervalMillis  = 1000
	defaultProbe               = ProbeProcessTable
	defaultScanWorkers         = 4
	defaultVolumetricMinSlices = 10
	defaultSinkOpenAttempts    = 5
	defaultSinkOpenRetryMillis = 50
	defaultNtfyTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Supervisor probe modes.
const (
	ProbeProcessTable = "process_table"
	ProbeHandle       = "handle"
)

var defaultJobArgs = []string{
	"--workflow", "{workflow}",
	"--input", "{primary_dir}",
	"--input", "{secondary_dir}",
	"--output", "{output_dir}",
}

var defaultScanExtensions = []string{".dcm", ".ima", ""}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuleFile:  defaultRuleFile,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Job: Job{
			Workflow:           defaultWorkflow,
			Args:               append([]string(nil), defaultJobArgs...),
			Concurrency:        defaultConcurrency,
			PollIntervalMillis: defaultPollIntervalMillis,
			Probe:              defaultProbe,
		},
		Scan: Scan{
			Workers:             defaultScanWorkers,
			Extensions:          append([]string(nil), defaultScanExtensions...),
			VolumetricMinSlices: defaultVolumetricMinSlices,
		},
		Sinks: Sinks{
			OpenAttempts:    defaultSinkOpenAttempts,
			OpenRetryMillis: defaultSinkOpenRetryMillis,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
