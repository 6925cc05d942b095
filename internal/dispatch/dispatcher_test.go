package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"studypair/internal/joblog"
	"studypair/internal/logging"
	"studypair/internal/matching"
	"studypair/internal/services"
)

// fakeSupervisor simulates jobs that stay running for a fixed number of
// probes after launch.
type fakeSupervisor struct {
	t        *testing.T
	limit    int
	lifetime int
	// foreign is reported as running for the first probes, as if unrelated
	// processes with the job's name were alive.
	foreign   []int
	jobs      []int
	probes    int
	lastCount int
	launched  []matching.Pair
	peak      int

	launchErr   error
	launchErrAt int
	probeErr    error
	probeErrAt  int
	panicAt     int
	onProbe     func()
}

func (f *fakeSupervisor) CountRunning(context.Context) (int, error) {
	f.probes++
	if f.onProbe != nil {
		f.onProbe()
	}
	if f.probeErr != nil && f.probes == f.probeErrAt {
		return 0, f.probeErr
	}
	alive := f.jobs[:0]
	for _, remaining := range f.jobs {
		if remaining-1 > 0 {
			alive = append(alive, remaining-1)
		}
	}
	f.jobs = alive
	count := len(f.jobs)
	if f.probes <= len(f.foreign) {
		count += f.foreign[f.probes-1]
	}
	f.lastCount = count
	return count, nil
}

func (f *fakeSupervisor) Launch(_ context.Context, pair matching.Pair) error {
	if f.lastCount >= f.limit {
		f.t.Errorf("launch admitted with %d running at limit %d", f.lastCount, f.limit)
	}
	if f.panicAt > 0 && len(f.launched)+1 == f.panicAt {
		panic("supervisor exploded")
	}
	if f.launchErr != nil && len(f.launched)+1 == f.launchErrAt {
		return f.launchErr
	}
	f.launched = append(f.launched, pair)
	lifetime := f.lifetime
	if lifetime <= 0 {
		lifetime = 1
	}
	f.jobs = append(f.jobs, lifetime)
	f.lastCount++
	if len(f.jobs) > f.peak {
		f.peak = len(f.jobs)
	}
	return nil
}

type recordingProgress struct {
	entries []joblog.Entry
}

func (r *recordingProgress) Record(entry joblog.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type recordingFaults struct {
	faults []joblog.Fault
}

func (r *recordingFaults) Report(f joblog.Fault) (string, error) {
	r.faults = append(r.faults, f)
	return fmt.Sprintf("fault-%d", len(r.faults)), nil
}

func pairsFor(n int) []matching.Pair {
	pairs := make([]matching.Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, matching.Pair{
			PatientName:        "Doe^Jane",
			PatientID:          "P1",
			AccessionNumber:    "A1",
			StudyUID:           fmt.Sprintf("ST%d", i),
			PrimarySeriesUID:   fmt.Sprintf("PT%d", i),
			SecondarySeriesUID: fmt.Sprintf("CT%d", i),
		})
	}
	return pairs
}

func newTestDispatcher(t *testing.T, sup Supervisor, limit int, progress ProgressRecorder, faults FaultReporter) (*Dispatcher, *int) {
	t.Helper()
	d, err := New(Options{
		Limit:      limit,
		Supervisor: sup,
		Progress:   progress,
		Errors:     faults,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	waits := 0
	d.wait = func(ctx context.Context, _ time.Duration) error {
		waits++
		return ctx.Err()
	}
	return d, &waits
}

func TestRunNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 8} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			sup := &fakeSupervisor{t: t, limit: limit, lifetime: 4}
			progress := &recordingProgress{}
			d, waits := newTestDispatcher(t, sup, limit, progress, nil)

			summary, err := d.Run(context.Background(), pairsFor(10))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if summary.Processed != 10 || summary.Skipped != 0 || summary.Index != 10 || summary.Total != 10 {
				t.Fatalf("unexpected summary: %+v", summary)
			}
			if sup.peak > limit {
				t.Fatalf("peak running %d exceeds limit %d", sup.peak, limit)
			}
			if len(sup.jobs) != 0 || sup.lastCount != 0 {
				t.Fatalf("run returned while %d jobs running", len(sup.jobs))
			}
			if limit < 10 && *waits == 0 {
				t.Fatalf("expected the dispatcher to wait at the limit")
			}
			if len(progress.entries) != 10 {
				t.Fatalf("expected 10 progress entries, got %d", len(progress.entries))
			}
		})
	}
}

func TestRunAdmitsInListOrder(t *testing.T) {
	sup := &fakeSupervisor{t: t, limit: 2, lifetime: 2}
	d, _ := newTestDispatcher(t, sup, 2, nil, nil)
	pairs := pairsFor(5)
	if _, err := d.Run(context.Background(), pairs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, pair := range sup.launched {
		if pair.StudyUID != pairs[i].StudyUID {
			t.Fatalf("launch %d was %s, want %s", i, pair.StudyUID, pairs[i].StudyUID)
		}
	}
}

func TestRunSkipsIncompletePairs(t *testing.T) {
	sup := &fakeSupervisor{t: t, limit: 1}
	progress := &recordingProgress{}
	d, _ := newTestDispatcher(t, sup, 1, progress, nil)

	pairs := pairsFor(3)
	pairs[1].SecondarySeriesUID = ""

	summary, err := d.Run(context.Background(), pairs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(sup.launched) != 2 {
		t.Fatalf("expected 2 launches, got %d", len(sup.launched))
	}
	for _, launched := range sup.launched {
		if launched.StudyUID == "ST1" {
			t.Fatalf("incomplete pair must not launch")
		}
	}
	statuses := make([]joblog.Status, 0, len(progress.entries))
	for _, entry := range progress.entries {
		statuses = append(statuses, entry.Status)
	}
	want := []joblog.Status{joblog.StatusProcessed, joblog.StatusSkipped, joblog.StatusProcessed}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	if progress.entries[1].StudyUID != "ST1" || progress.entries[1].PrimarySeriesUID != "PT1" {
		t.Fatalf("unexpected skipped entry: %+v", progress.entries[1])
	}
}

func TestRunEmptyListReturnsWhenIdle(t *testing.T) {
	sup := &fakeSupervisor{t: t, limit: 1}
	d, waits := newTestDispatcher(t, sup, 1, nil, nil)
	summary, err := d.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary != (Summary{}) || *waits != 0 || sup.probes != 1 {
		t.Fatalf("unexpected summary %+v, waits %d, probes %d", summary, *waits, sup.probes)
	}
}

func TestRunWaitsForForeignProcesses(t *testing.T) {
	sup := &fakeSupervisor{t: t, limit: 1, foreign: []int{1, 1, 1}}
	d, waits := newTestDispatcher(t, sup, 1, nil, nil)
	if _, err := d.Run(context.Background(), pairsFor(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sup.launched) != 1 {
		t.Fatalf("expected launch once the name slot freed up")
	}
	if *waits < 3 {
		t.Fatalf("expected at least 3 waits, got %d", *waits)
	}
}

func TestRunLaunchFailureAborts(t *testing.T) {
	boom := errors.New("exec format error")
	sup := &fakeSupervisor{t: t, limit: 4, launchErr: boom, launchErrAt: 2}
	progress := &recordingProgress{}
	faults := &recordingFaults{}
	d, _ := newTestDispatcher(t, sup, 4, progress, faults)

	var observed []joblog.Status
	d.observer = ObserverFunc(func(_ int, _ matching.Pair, status joblog.Status) {
		observed = append(observed, status)
	})

	summary, err := d.Run(context.Background(), pairsFor(4))
	var fault *LaunchFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected LaunchFault, got %v", err)
	}
	if !errors.Is(err, services.ErrExternalTool) || !errors.Is(err, boom) {
		t.Fatalf("fault should wrap marker and cause: %v", err)
	}
	if fault.Op != OpLaunch || fault.Index != 1 || fault.Pair.StudyUID != "ST1" {
		t.Fatalf("unexpected fault: %+v", fault)
	}
	if summary.Processed != 1 || summary.Index != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	last := progress.entries[len(progress.entries)-1]
	if last.Status != joblog.StatusError || last.StudyUID != "ST1" {
		t.Fatalf("expected ERROR entry for ST1, got %+v", last)
	}
	if len(progress.entries) != 2 {
		t.Fatalf("no pair after the fault may be recorded: %+v", progress.entries)
	}
	if len(faults.faults) != 1 || !errors.Is(faults.faults[0].Cause, boom) {
		t.Fatalf("expected one fault report with cause, got %+v", faults.faults)
	}
	if !strings.Contains(faults.faults[0].Message, "ST1") {
		t.Fatalf("fault message should name the study: %q", faults.faults[0].Message)
	}
	if fmt.Sprint(observed) != fmt.Sprint([]joblog.Status{joblog.StatusProcessed, joblog.StatusError}) {
		t.Fatalf("observer saw %v", observed)
	}
}

func TestRunProbeFailureAborts(t *testing.T) {
	probeErr := errors.New("proc unreadable")
	sup := &fakeSupervisor{t: t, limit: 1, lifetime: 3, probeErr: probeErr, probeErrAt: 2}
	progress := &recordingProgress{}
	faults := &recordingFaults{}
	d, _ := newTestDispatcher(t, sup, 1, progress, faults)

	_, err := d.Run(context.Background(), pairsFor(2))
	var fault *LaunchFault
	if !errors.As(err, &fault) || fault.Op != OpProbe {
		t.Fatalf("expected probe fault, got %v", err)
	}
	if fault.Index != 1 {
		t.Fatalf("in-flight index = %d, want 1", fault.Index)
	}
	if len(faults.faults) != 1 {
		t.Fatalf("expected fault report")
	}
	if got := progress.entries[len(progress.entries)-1].Status; got != joblog.StatusError {
		t.Fatalf("last status = %s", got)
	}
}

func TestRunProbeFailureAfterAdmission(t *testing.T) {
	probeErr := errors.New("proc unreadable")
	sup := &fakeSupervisor{t: t, limit: 1, lifetime: 5, probeErr: probeErr, probeErrAt: 2}
	progress := &recordingProgress{}
	d, _ := newTestDispatcher(t, sup, 1, progress, &recordingFaults{})

	_, err := d.Run(context.Background(), pairsFor(1))
	var fault *LaunchFault
	if !errors.As(err, &fault) || fault.Index != -1 {
		t.Fatalf("expected fault without pair, got %v", err)
	}
	if len(progress.entries) != 1 || progress.entries[0].Status != joblog.StatusProcessed {
		t.Fatalf("no ERROR entry expected without an in-flight pair: %+v", progress.entries)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	sup := &fakeSupervisor{t: t, limit: 2, panicAt: 1}
	progress := &recordingProgress{}
	faults := &recordingFaults{}
	d, _ := newTestDispatcher(t, sup, 2, progress, faults)

	_, err := d.Run(context.Background(), pairsFor(2))
	var fault *LaunchFault
	if !errors.As(err, &fault) || fault.Op != OpPanic {
		t.Fatalf("expected panic fault, got %v", err)
	}
	if !strings.Contains(fault.Error(), "supervisor exploded") {
		t.Fatalf("fault should carry panic value: %v", fault)
	}
	if len(faults.faults) != 1 || len(faults.faults[0].Stack) == 0 {
		t.Fatalf("expected fault report with stack")
	}
	if len(progress.entries) != 1 || progress.entries[0].Status != joblog.StatusError {
		t.Fatalf("expected single ERROR entry, got %+v", progress.entries)
	}
}

func TestRunCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := &fakeSupervisor{t: t, limit: 1, lifetime: 100}
	d, _ := newTestDispatcher(t, sup, 1, nil, nil)
	sup.onProbe = func() {
		if sup.probes == 3 {
			cancel()
		}
	}
	summary, err := d.Run(ctx, pairsFor(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Index != 1 {
		t.Fatalf("expected one admitted pair, got %+v", summary)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Limit: 1}); err == nil {
		t.Fatal("expected error without supervisor")
	}
	if _, err := New(Options{Limit: 0, Supervisor: &fakeSupervisor{}}); err == nil {
		t.Fatal("expected error for zero limit")
	}
	d, err := New(Options{Limit: 2, Supervisor: &fakeSupervisor{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.poll != DefaultPollInterval {
		t.Fatalf("poll = %v, want default", d.poll)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancel, got %v", err)
	}
}
