package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"studypair/internal/config"
	"studypair/internal/dicomscan"
	"studypair/internal/dispatch"
	"studypair/internal/history"
	"studypair/internal/joblog"
	"studypair/internal/logging"
	"studypair/internal/matching"
	"studypair/internal/notifications"
	"studypair/internal/rules"
	"studypair/internal/series"
	"studypair/internal/services"
)

// ErrBatchLocked reports another batch dispatching into the same output
// directory.
var ErrBatchLocked = errors.New("another batch holds the output directory lock")

// RecordScanner turns input directories into series records.
type RecordScanner interface {
	Scan(ctx context.Context, dirs []string) ([]series.Record, error)
}

// Options configures a Runner. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Scanner defaults to a DICOM scanner built from the scan settings.
	Scanner RecordScanner
	// Supervisor defaults to the one selected by job.probe.
	Supervisor dispatch.Supervisor
	// Observer receives every dispatch decision after the ledger does.
	Observer dispatch.Observer
	// OnPlanned is called with the matched pairs before dispatch starts.
	OnPlanned func(pairs []matching.Pair)
	// Notifier defaults to the ntfy service from the notifications settings.
	Notifier notifications.Service
	BatchID  string
}

// Plan is the outcome of scanning and matching.
type Plan struct {
	Records []series.Record
	Pairs   []matching.Pair
	// RuleErr is set when the rule file could not be used; the plan then
	// holds no pairs.
	RuleErr error
}

// Result describes a finished run.
type Result struct {
	BatchID string
	Plan    Plan
	Summary dispatch.Summary
}

// Runner orchestrates batches.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	scanner  RecordScanner
	engine   *matching.Engine
	observer dispatch.Observer
	planned  func([]matching.Pair)
	batchID  string
	sup      dispatch.Supervisor
	notifier notifications.Service
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("batch: config required")
	}
	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	scanner := opts.Scanner
	if scanner == nil {
		scanner = dicomscan.New(dicomscan.Options{
			Classifier: series.Classifier{VolumetricMinSlices: opts.Config.Scan.VolumetricMinSlices},
			Extensions: opts.Config.Scan.Extensions,
			Workers:    opts.Config.Scan.Workers,
			Logger:     logger,
		})
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	return &Runner{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "batch"),
		scanner:  scanner,
		engine:   matching.NewEngine(logger),
		observer: opts.Observer,
		planned:  opts.OnPlanned,
		batchID:  batchID,
		sup:      opts.Supervisor,
		notifier: notifier,
	}, nil
}

// BatchID returns the identifier stamped on this runner's logs and ledger.
func (r *Runner) BatchID() string { return r.batchID }

// Plan scans dirs and matches pairs. A rule file that cannot be used yields
// an empty plan with RuleErr set rather than an error.
func (r *Runner) Plan(ctx context.Context, dirs []string) (Plan, error) {
	if len(dirs) == 0 {
		return Plan{}, services.Wrap(services.ErrValidation, "batch", "plan", "at least one input directory required", nil)
	}
	records, err := r.scanner.Scan(ctx, dirs)
	if err != nil {
		return Plan{}, fmt.Errorf("scan inputs: %w", err)
	}
	plan := Plan{Records: records}
	pairs, err := r.engine.MatchFile(records, r.cfg.Paths.RuleFile)
	if err != nil {
		var cfgErr *rules.ConfigurationError
		if !errors.As(err, &cfgErr) {
			return Plan{}, err
		}
		r.logger.Warn("rule file unusable; batch will be empty",
			logging.String("rule_file", r.cfg.Paths.RuleFile),
			logging.Error(err),
			logging.String(logging.FieldEventType, "rules_unusable"),
			logging.String(logging.FieldErrorHint, "run 'studypair check' to validate the rule file"),
		)
		plan.RuleErr = err
		return plan, nil
	}
	plan.Pairs = pairs
	return plan, nil
}

// Run plans and dispatches one batch. The returned error is a
// *dispatch.LaunchFault when a job could not be started, ctx.Err() when
// cancelled, or a setup failure.
func (r *Runner) Run(ctx context.Context, dirs []string) (Result, error) {
	result := Result{BatchID: r.batchID}
	ctx = services.WithBatchID(ctx, r.batchID)

	if err := r.cfg.ValidateDispatch(); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "batch", "validate", "", err)
	}
	if err := r.cfg.EnsureDirectories(); err != nil {
		return result, err
	}

	lock := flock.New(r.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrBatchLocked, r.cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release batch lock", logging.Error(err))
		}
	}()

	ledger, err := history.Open(r.cfg.Paths.HistoryDB)
	if err != nil {
		return result, fmt.Errorf("open history: %w", err)
	}
	defer ledger.Close()

	started := time.Now()
	if err := ledger.BeginRun(ctx, history.Run{
		ID:        r.batchID,
		StartedAt: started,
		Inputs:    dirs,
		RuleFile:  r.cfg.Paths.RuleFile,
		Workflow:  r.cfg.Job.Workflow,
	}); err != nil {
		return result, err
	}
	r.logger.Info("batch started",
		logging.String("lock", r.cfg.LockPath()),
		logging.Int("inputs", len(dirs)),
		logging.String(logging.FieldEventType, "batch_started"),
	)

	summary, runErr := r.execute(ctx, ledger, dirs, &result)
	result.Summary = summary

	outcome := history.Outcome{
		Status:    history.RunCompleted,
		Processed: summary.Processed,
		Skipped:   summary.Skipped,
		Err:       runErr,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		outcome.Status = history.RunCancelled
	default:
		outcome.Status = history.RunFailed
	}
	// The run is closed even when ctx was cancelled.
	if err := ledger.FinishRun(context.WithoutCancel(ctx), r.batchID, outcome); err != nil {
		r.logger.Warn("failed to close run in history", logging.Error(err))
	}

	r.notifyOutcome(context.WithoutCancel(ctx), result, outcome, time.Since(started))

	r.logger.Info("batch finished",
		logging.String("status", string(outcome.Status)),
		logging.Int("records", len(result.Plan.Records)),
		logging.Int("pairs", len(result.Plan.Pairs)),
		logging.Int("processed", summary.Processed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		logging.String(logging.FieldEventType, "batch_finished"),
	)
	return result, runErr
}

func (r *Runner) execute(ctx context.Context, ledger *history.Store, dirs []string, result *Result) (dispatch.Summary, error) {
	plan, err := r.Plan(ctx, dirs)
	if err != nil {
		return dispatch.Summary{}, err
	}
	result.Plan = plan
	if err := ledger.SetCounts(ctx, r.batchID, len(plan.Records), len(plan.Pairs)); err != nil {
		r.logger.Warn("failed to record batch counts", logging.Error(err))
	}
	if r.planned != nil {
		r.planned(plan.Pairs)
	}
	if len(plan.Pairs) > 0 {
		if err := r.notifier.NotifyBatchStarted(ctx, r.batchID, len(plan.Pairs)); err != nil {
			r.logger.Warn("batch start notification failed", logging.Error(err))
		}
	}

	sup := r.sup
	if sup == nil {
		sup, err = dispatch.NewSupervisor(r.cfg.Job.Probe, dispatch.Command{
			Binary:    r.cfg.Job.Binary,
			Args:      r.cfg.Job.Args,
			Workflow:  r.cfg.Job.Workflow,
			OutputDir: r.cfg.Paths.OutputDir,
		}, dispatch.WithLogger(r.logger))
		if err != nil {
			return dispatch.Summary{}, err
		}
	}

	sinkOpts := joblog.Options{
		OpenAttempts: r.cfg.Sinks.OpenAttempts,
		RetryDelay:   r.cfg.SinkRetryDelay(),
		Logger:       r.logger,
	}
	dispatcher, err := dispatch.New(dispatch.Options{
		Limit:        r.cfg.Job.Concurrency,
		PollInterval: r.cfg.PollInterval(),
		Supervisor:   sup,
		Progress:     joblog.NewProgressSink(r.cfg.Paths.ProgressLog, sinkOpts),
		Errors:       joblog.NewErrorSink(r.cfg.Paths.ErrorLog, sinkOpts),
		Observer:     r.ledgerObserver(ctx, ledger),
		Logger:       r.logger,
	})
	if err != nil {
		return dispatch.Summary{}, err
	}
	return dispatcher.Run(ctx, plan.Pairs)
}

// notifyOutcome reports completed and failed batches. Cancelled batches are
// not announced.
func (r *Runner) notifyOutcome(ctx context.Context, result Result, outcome history.Outcome, elapsed time.Duration) {
	var err error
	switch outcome.Status {
	case history.RunCompleted:
		err = r.notifier.NotifyBatchCompleted(ctx, notifications.BatchSummary{
			BatchID:   r.batchID,
			Pairs:     len(result.Plan.Pairs),
			Processed: outcome.Processed,
			Skipped:   outcome.Skipped,
			Duration:  elapsed,
		})
	case history.RunFailed:
		err = r.notifier.NotifyFault(ctx, r.batchID, outcome.Err)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("batch notification failed",
			logging.String("status", string(outcome.Status)),
			logging.Error(err),
		)
	}
}

func (r *Runner) ledgerObserver(ctx context.Context, ledger *history.Store) dispatch.Observer {
	recordCtx := context.WithoutCancel(ctx)
	return dispatch.ObserverFunc(func(index int, pair matching.Pair, status joblog.Status) {
		if err := ledger.RecordDecision(recordCtx, r.batchID, index, pair, status); err != nil {
			r.logger.Warn("failed to record decision",
				logging.Int("index", index),
				logging.String(logging.FieldStudyUID, pair.StudyUID),
				logging.Error(err),
			)
		}
		if r.observer != nil {
			r.observer.Decided(index, pair, status)
		}
	})
}
