package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"studypair/internal/joblog"
	"studypair/internal/logging"
	"studypair/internal/matching"
	"studypair/internal/services"
)

// DefaultPollInterval is the wait between probes while the limit is reached.
const DefaultPollInterval = time.Second

// Supervisor launches jobs and reports how many are running.
type Supervisor interface {
	// Launch starts the job for pair without waiting for it to finish.
	Launch(ctx context.Context, pair matching.Pair) error
	CountRunning(ctx context.Context) (int, error)
}

// ProgressRecorder receives one entry per decision.
type ProgressRecorder interface {
	Record(entry joblog.Entry) error
}

// FaultReporter receives the full description of a fatal fault.
type FaultReporter interface {
	Report(fault joblog.Fault) (string, error)
}

// Observer is notified after every decision, including the ERROR of a
// failed launch.
type Observer interface {
	Decided(index int, pair matching.Pair, status joblog.Status)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(index int, pair matching.Pair, status joblog.Status)

// Decided calls fn.
func (fn ObserverFunc) Decided(index int, pair matching.Pair, status joblog.Status) {
	fn(index, pair, status)
}

// Options configures a Dispatcher.
type Options struct {
	Limit        int
	PollInterval time.Duration
	Supervisor   Supervisor
	Progress     ProgressRecorder
	Errors       FaultReporter
	Observer     Observer
	Logger       *slog.Logger
}

// Summary reports what a run admitted.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	// Index is the number of pairs admitted before the run ended.
	Index int
}

// Dispatcher admits pairs to the supervisor in list order.
type Dispatcher struct {
	limit      int
	poll       time.Duration
	supervisor Supervisor
	progress   ProgressRecorder
	errors     FaultReporter
	observer   Observer
	logger     *slog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

// New validates opts and constructs a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Supervisor == nil {
		return nil, errors.New("dispatch: supervisor required")
	}
	if opts.Limit < 1 {
		return nil, fmt.Errorf("dispatch: limit must be at least 1, got %d", opts.Limit)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Dispatcher{
		limit:      opts.Limit,
		poll:       poll,
		supervisor: opts.Supervisor,
		progress:   opts.Progress,
		errors:     opts.Errors,
		observer:   opts.Observer,
		logger:     logging.NewComponentLogger(opts.Logger, "dispatch"),
		wait:       sleepContext,
	}, nil
}

// Run admits every pair and returns once all are admitted and the
// supervisor reports no running jobs. A launch or probe failure ends the run
// with a *LaunchFault. Cancelling ctx stops waiting and returns ctx.Err();
// jobs already running are left alone.
func (d *Dispatcher) Run(ctx context.Context, pairs []matching.Pair) (summary Summary, err error) {
	summary.Total = len(pairs)
	next := 0

	defer func() {
		if r := recover(); r != nil {
			index := -1
			var pair matching.Pair
			if next < len(pairs) {
				index, pair = next, pairs[next]
			}
			err = d.fail(ctx, &LaunchFault{Op: OpPanic, Index: index, Pair: pair, Err: fmt.Errorf("%v", r)}, debug.Stack())
		}
	}()

	d.logger.Info("dispatch started",
		logging.Int("pairs", len(pairs)),
		logging.Int("limit", d.limit),
		logging.Duration("poll_interval", d.poll),
	)

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("dispatch cancelled", logging.Int("admitted", summary.Index), logging.Error(err))
			return summary, err
		}

		running, probeErr := d.supervisor.CountRunning(ctx)
		if probeErr != nil {
			index := -1
			var pair matching.Pair
			if next < len(pairs) {
				index, pair = next, pairs[next]
			}
			return summary, d.fail(ctx, &LaunchFault{Op: OpProbe, Index: index, Pair: pair, Err: probeErr}, nil)
		}

		if next >= len(pairs) && running == 0 {
			d.logger.Info("dispatch complete",
				logging.Int("processed", summary.Processed),
				logging.Int("skipped", summary.Skipped),
			)
			return summary, nil
		}

		if next < len(pairs) && running < d.limit {
			pair := pairs[next]
			status, launchErr := d.admit(ctx, next, pair)
			if launchErr != nil {
				return summary, d.fail(ctx, &LaunchFault{Op: OpLaunch, Index: next, Pair: pair, Err: launchErr}, nil)
			}
			switch status {
			case joblog.StatusProcessed:
				summary.Processed++
			case joblog.StatusSkipped:
				summary.Skipped++
			}
			next++
			summary.Index = next
			continue
		}

		if err := d.wait(ctx, d.poll); err != nil {
			d.logger.Warn("dispatch cancelled", logging.Int("admitted", summary.Index), logging.Error(err))
			return summary, err
		}
	}
}

func (d *Dispatcher) admit(ctx context.Context, index int, pair matching.Pair) (joblog.Status, error) {
	ctx = services.WithStudyUID(ctx, pair.StudyUID)
	logger := d.logger.With(logging.Int("index", index))
	if !pair.Complete() {
		logger.InfoContext(ctx, "pair skipped",
			logging.String("primary_series", pair.PrimarySeriesUID),
			logging.String("secondary_series", pair.SecondarySeriesUID),
			logging.String(logging.FieldEventType, "pair_skipped"),
		)
		d.decided(index, pair, joblog.StatusSkipped)
		return joblog.StatusSkipped, nil
	}
	if err := d.supervisor.Launch(ctx, pair); err != nil {
		return "", err
	}
	logger.InfoContext(ctx, "pair launched",
		logging.String("primary_series", pair.PrimarySeriesUID),
		logging.String("secondary_series", pair.SecondarySeriesUID),
		logging.String(logging.FieldEventType, "pair_launched"),
	)
	d.decided(index, pair, joblog.StatusProcessed)
	return joblog.StatusProcessed, nil
}

func (d *Dispatcher) decided(index int, pair matching.Pair, status joblog.Status) {
	if d.progress != nil {
		if err := d.progress.Record(entryFor(pair, status)); err != nil {
			d.logger.Debug("progress entry dropped", logging.Int("index", index), logging.Error(err))
		}
	}
	if d.observer != nil {
		d.observer.Decided(index, pair, status)
	}
}

// fail records the fault everywhere it belongs and returns it.
func (d *Dispatcher) fail(_ context.Context, fault *LaunchFault, stack []byte) error {
	if fault.Index >= 0 {
		d.decided(fault.Index, fault.Pair, joblog.StatusError)
	}
	var id string
	if d.errors != nil {
		var err error
		id, err = d.errors.Report(joblog.Fault{
			Message: fault.Error(),
			Err:     fault,
			Cause:   fault.Err,
			Stack:   stack,
		})
		if err != nil {
			d.logger.Debug("error report dropped", logging.Error(err))
		}
	}
	d.logger.Error("dispatch aborted",
		logging.String("op", fault.Op),
		logging.Int("index", fault.Index),
		logging.String(logging.FieldStudyUID, fault.Pair.StudyUID),
		logging.String("fault_id", id),
		logging.Error(fault.Err),
		logging.String(logging.FieldEventType, "dispatch_fault"),
		logging.String(logging.FieldErrorHint, "check the job binary and the error log"),
	)
	return fault
}

func entryFor(pair matching.Pair, status joblog.Status) joblog.Entry {
	return joblog.Entry{
		Status:             status,
		PatientName:        pair.PatientName,
		PatientID:          pair.PatientID,
		AccessionNumber:    pair.AccessionNumber,
		StudyUID:           pair.StudyUID,
		PrimarySeriesUID:   pair.PrimarySeriesUID,
		SecondarySeriesUID: pair.SecondarySeriesUID,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
