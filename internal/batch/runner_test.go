package batch_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"studypair/internal/batch"
	"studypair/internal/dispatch"
	"studypair/internal/history"
	"studypair/internal/joblog"
	"studypair/internal/logging"
	"studypair/internal/matching"
	"studypair/internal/notifications"
	"studypair/internal/series"
	"studypair/internal/services"
	"studypair/internal/testsupport"
)

type stubScanner struct {
	records []series.Record
	err     error
	dirs    []string
}

func (s *stubScanner) Scan(_ context.Context, dirs []string) ([]series.Record, error) {
	s.dirs = dirs
	return s.records, s.err
}

type recordingNotifier struct {
	started   []int
	completed []notifications.BatchSummary
	faults    []error
}

func (n *recordingNotifier) NotifyBatchStarted(_ context.Context, _ string, pairs int) error {
	n.started = append(n.started, pairs)
	return nil
}

func (n *recordingNotifier) NotifyBatchCompleted(_ context.Context, summary notifications.BatchSummary) error {
	n.completed = append(n.completed, summary)
	return nil
}

func (n *recordingNotifier) NotifyFault(_ context.Context, _ string, err error) error {
	n.faults = append(n.faults, err)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func record(study, seriesUID, frame, modality, role string, slices int) series.Record {
	return series.Record{
		PatientName:         "Doe^Jane",
		PatientID:           "P1",
		AccessionNumber:     "A-" + study,
		StudyUID:            study,
		SeriesUID:           seriesUID,
		FrameOfReferenceUID: frame,
		Modality:            modality,
		ScanRole:            role,
		Orientation:         series.OrientationAxial,
		IsVolumetric:        true,
		SliceCount:          slices,
		FilesFolder:         "/in/" + seriesUID,
	}
}

func twoStudies() []series.Record {
	return []series.Record{
		record("ST1", "S1", "F1", "PT", series.RoleAttenuationCorrected, 100),
		record("ST1", "S2", "F1", "CT", series.RoleStandard, 100),
		record("ST2", "S3", "F2", "PT", series.RoleAttenuationCorrected, 200),
		record("ST2", "S4", "F2", "CT", series.RoleStandard, 200),
		record("ST2", "S5", "F2", "CT", series.RoleLocalizer, 1),
	}
}

func readProgress(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open progress: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read progress: %v", err)
	}
	return rows
}

func TestRunDispatchesMatchedPairs(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSampleRules(),
		testsupport.WithStubbedJob(`echo "$@"`),
		testsupport.WithConcurrency(1),
	)
	scanner := &stubScanner{records: twoStudies()}
	var observed []joblog.Status
	var planned int
	notifier := &recordingNotifier{}
	runner, err := batch.New(batch.Options{
		Config:    cfg,
		Logger:    logging.NewNop(),
		Scanner:   scanner,
		BatchID:   "batch-1",
		Notifier:  notifier,
		OnPlanned: func(pairs []matching.Pair) { planned = len(pairs) },
		Observer: dispatch.ObserverFunc(func(_ int, _ matching.Pair, status joblog.Status) {
			observed = append(observed, status)
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := runner.Run(context.Background(), []string{"/in"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.BatchID != "batch-1" || len(result.Plan.Pairs) != 2 || planned != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Summary.Processed != 2 || result.Summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if len(observed) != 2 {
		t.Fatalf("observer saw %v", observed)
	}
	if len(notifier.started) != 1 || notifier.started[0] != 2 {
		t.Fatalf("unexpected start notifications: %v", notifier.started)
	}
	if len(notifier.completed) != 1 || notifier.completed[0].Processed != 2 || notifier.completed[0].BatchID != "batch-1" {
		t.Fatalf("unexpected completion notifications: %+v", notifier.completed)
	}

	rows := readProgress(t, cfg.Paths.ProgressLog)
	if len(rows) != 2 || rows[0][1] != "PROCESSED" || rows[0][5] != "ST1" || rows[1][5] != "ST2" {
		t.Fatalf("unexpected progress rows: %v", rows)
	}

	jobLog := filepath.Join(cfg.Paths.OutputDir, "P1_ST1_S1", dispatch.JobLogName)
	data, err := os.ReadFile(jobLog)
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	if !strings.Contains(string(data), "--input /in/S1 --input /in/S2") {
		t.Fatalf("job log missing expanded args: %q", data)
	}

	ledger := testsupport.MustOpenLedger(t, cfg)
	run, err := ledger.GetRun(context.Background(), "batch-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %+v %v", run, err)
	}
	if run.Status != history.RunCompleted || run.RecordCount != 5 || run.PairCount != 2 || run.Processed != 2 {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
	decisions, err := ledger.Decisions(context.Background(), "batch-1")
	if err != nil || len(decisions) != 2 {
		t.Fatalf("Decisions = %+v, %v", decisions, err)
	}
}

func TestRunWithUnusableRulesIsEmptyBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRules("<MatchRules><Only/></MatchRules>"), testsupport.WithStubbedJob(""))
	runner, err := batch.New(batch.Options{Config: cfg, Scanner: &stubScanner{records: twoStudies()}, BatchID: "empty"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := runner.Run(context.Background(), []string{"/in"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(result.Plan.RuleErr, services.ErrConfiguration) {
		t.Fatalf("expected rule configuration error, got %v", result.Plan.RuleErr)
	}
	if len(result.Plan.Pairs) != 0 || result.Summary.Processed != 0 {
		t.Fatalf("expected empty batch: %+v", result)
	}
	if _, err := os.Stat(cfg.Paths.ProgressLog); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("progress log should not exist for an empty batch: %v", err)
	}
}

func TestRunLaunchFaultMarksRunFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules())
	cfg.Job.Binary = filepath.Join(testsupport.BaseDir(cfg), "missing-binary")
	notifier := &recordingNotifier{}
	runner, err := batch.New(batch.Options{Config: cfg, Scanner: &stubScanner{records: twoStudies()}, BatchID: "fail", Notifier: notifier})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = runner.Run(context.Background(), []string{"/in"})
	var fault *dispatch.LaunchFault
	if !errors.As(err, &fault) || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected launch fault, got %v", err)
	}
	if len(notifier.faults) != 1 || !errors.Is(notifier.faults[0], services.ErrExternalTool) || len(notifier.completed) != 0 {
		t.Fatalf("unexpected notifications: %+v", notifier)
	}

	rows := readProgress(t, cfg.Paths.ProgressLog)
	if len(rows) != 1 || rows[0][1] != "ERROR" || rows[0][5] != "ST1" {
		t.Fatalf("unexpected progress rows: %v", rows)
	}
	data, err := os.ReadFile(cfg.Paths.ErrorLog)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if !strings.Contains(string(data), "identifier: ") || !strings.Contains(string(data), "missing-binary") {
		t.Fatalf("unexpected error log: %s", data)
	}

	ledger := testsupport.MustOpenLedger(t, cfg)
	run, err := ledger.GetRun(context.Background(), "fail")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != history.RunFailed || run.ErrorKind != "external_tool" {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
}

func TestRunRequiresBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules())
	runner, err := batch.New(batch.Options{Config: cfg, Scanner: &stubScanner{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := runner.Run(context.Background(), []string{"/in"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunRefusesLockedOutputDir(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules(), testsupport.WithStubbedJob(""))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	runner, err := batch.New(batch.Options{Config: cfg, Scanner: &stubScanner{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := runner.Run(context.Background(), []string{"/in"}); !errors.Is(err, batch.ErrBatchLocked) {
		t.Fatalf("expected ErrBatchLocked, got %v", err)
	}
}

func TestRunCancelledRecordsCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules(), testsupport.WithStubbedJob("sleep 1"), testsupport.WithConcurrency(1))
	ctx, cancel := context.WithCancel(context.Background())
	runner, err := batch.New(batch.Options{
		Config:  cfg,
		Scanner: &stubScanner{records: twoStudies()},
		BatchID: "cancel",
		Observer: dispatch.ObserverFunc(func(int, matching.Pair, joblog.Status) {
			cancel()
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := runner.Run(ctx, []string{"/in"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result.Summary.Index != 1 {
		t.Fatalf("expected one admitted pair, got %+v", result.Summary)
	}
	ledger := testsupport.MustOpenLedger(t, cfg)
	run, err := ledger.GetRun(context.Background(), "cancel")
	if err != nil || run == nil || run.Status != history.RunCancelled {
		t.Fatalf("unexpected run: %+v %v", run, err)
	}
}

func TestPlanDoesNotDispatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules())
	scanner := &stubScanner{records: twoStudies()}
	runner, err := batch.New(batch.Options{Config: cfg, Scanner: scanner})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if runner.BatchID() == "" {
		t.Fatal("expected generated batch id")
	}
	plan, err := runner.Plan(context.Background(), []string{"/a", "/b"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Records) != 5 || len(plan.Pairs) != 2 || plan.RuleErr != nil {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.Pairs[1].SecondarySeriesUID != "S4" {
		t.Fatalf("localizer must not pair: %+v", plan.Pairs[1])
	}
	if len(scanner.dirs) != 2 {
		t.Fatalf("scanner saw %v", scanner.dirs)
	}
	if _, err := os.Stat(cfg.Paths.OutputDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("plan must not create the output dir: %v", err)
	}
}

func TestPlanPropagatesScanErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSampleRules())
	boom := services.Wrap(services.ErrNotFound, "scan", "stat input", "/missing", nil)
	runner, err := batch.New(batch.Options{Config: cfg, Scanner: &stubScanner{err: boom}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := runner.Plan(context.Background(), []string{"/missing"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := runner.Plan(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without inputs, got %v", err)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := batch.New(batch.Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
