package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"studypair/internal/logging"
	"studypair/internal/matching"
	"studypair/internal/services"
)

// Supervisor kinds accepted by NewSupervisor.
const (
	KindProcessTable = "process_table"
	KindHandle       = "handle"
)

// ProcessSpec is one job invocation.
type ProcessSpec struct {
	Binary  string
	Args    []string
	JobDir  string
	LogPath string
}

// Process is a started job.
type Process interface {
	Pid() int
	Wait() error
}

// Starter abstracts process creation for testability.
type Starter interface {
	Start(spec ProcessSpec) (Process, error)
}

// Option configures a supervisor.
type Option func(*launcher)

// WithStarter injects a custom starter (primarily for tests).
func WithStarter(starter Starter) Option {
	return func(l *launcher) {
		if starter != nil {
			l.starter = starter
		}
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *launcher) {
		l.logger = logging.NewComponentLogger(logger, "supervisor")
	}
}

// launcher starts jobs and reaps them in the background.
type launcher struct {
	command Command
	starter Starter
	logger  *slog.Logger
	live    atomic.Int64
	reaped  sync.WaitGroup
}

func newLauncher(command Command, opts ...Option) (*launcher, error) {
	command.Binary = strings.TrimSpace(command.Binary)
	if command.Binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "configure supervisor", "job binary required", nil)
	}
	l := &launcher{
		command: command,
		starter: commandStarter{},
		logger:  logging.NewComponentLogger(nil, "supervisor"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Launch starts the pair's job without waiting for it.
func (l *launcher) Launch(_ context.Context, pair matching.Pair) error {
	jobDir := l.command.JobDir(pair)
	spec := ProcessSpec{
		Binary:  l.command.Binary,
		Args:    l.command.Expand(pair),
		JobDir:  jobDir,
		LogPath: filepath.Join(jobDir, JobLogName),
	}
	proc, err := l.starter.Start(spec)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "dispatch", "start job", l.command.Binary, err)
	}
	l.live.Add(1)
	l.reaped.Add(1)
	logger := l.logger.With(
		logging.String(logging.FieldStudyUID, pair.StudyUID),
		logging.Int("pid", proc.Pid()),
	)
	logger.Debug("job started", logging.String("job_dir", jobDir), logging.Any("args", spec.Args))
	go func() {
		defer l.reaped.Done()
		waitErr := proc.Wait()
		l.live.Add(-1)
		if waitErr != nil {
			logger.Warn("job exited with error",
				logging.Error(waitErr),
				logging.String("job_log", spec.LogPath),
				logging.String(logging.FieldEventType, "job_failed"),
			)
			return
		}
		logger.Info("job finished", logging.String(logging.FieldEventType, "job_finished"))
	}()
	return nil
}

// Wait blocks until every launched job has been reaped.
func (l *launcher) Wait() {
	l.reaped.Wait()
}

// Handle counts the jobs it launched and has not yet reaped.
type Handle struct {
	*launcher
}

// NewHandle constructs a handle-tracking supervisor.
func NewHandle(command Command, opts ...Option) (*Handle, error) {
	l, err := newLauncher(command, opts...)
	if err != nil {
		return nil, err
	}
	return &Handle{launcher: l}, nil
}

// CountRunning returns the number of unreaped children.
func (h *Handle) CountRunning(context.Context) (int, error) {
	return int(h.live.Load()), nil
}

// NewSupervisor builds the supervisor named by kind.
func NewSupervisor(kind string, command Command, opts ...Option) (Supervisor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindProcessTable, "":
		return NewProcessTable(command, opts...)
	case KindHandle:
		return NewHandle(command, opts...)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "configure supervisor", fmt.Sprintf("unknown probe %q", kind), nil)
	}
}

type commandStarter struct{}

func (commandStarter) Start(spec ProcessSpec) (Process, error) {
	if err := os.MkdirAll(spec.JobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}
	// Jobs outlive a cancelled batch, so no CommandContext here.
	cmd := exec.Command(spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.JobDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start command: %w", err)
	}
	return &commandProcess{cmd: cmd, log: logFile}, nil
}

type commandProcess struct {
	cmd *exec.Cmd
	log *os.File
}

func (p *commandProcess) Pid() int { return p.cmd.Process.Pid }

func (p *commandProcess) Wait() error {
	err := p.cmd.Wait()
	if closeErr := p.log.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}
