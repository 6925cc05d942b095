package joblog

import (
	"encoding/csv"
	"os"
	"time"
)

// Status is the outcome recorded for one pair.
type Status string

const (
	StatusProcessed Status = "PROCESSED"
	StatusSkipped   Status = "SKIPPED"
	StatusError     Status = "ERROR"
	StatusUnknown   Status = "UNKNOWN"
)

// Entry is one progress line.
type Entry struct {
	Time               time.Time
	Status             Status
	PatientName        string
	PatientID          string
	AccessionNumber    string
	StudyUID           string
	PrimarySeriesUID   string
	SecondarySeriesUID string
}

// Fields renders the entry in column order.
func (e Entry) Fields() []string {
	status := e.Status
	switch status {
	case StatusProcessed, StatusSkipped, StatusError:
	default:
		status = StatusUnknown
	}
	return []string{
		e.Time.UTC().Format(time.RFC3339),
		string(status),
		e.PatientName,
		e.PatientID,
		e.AccessionNumber,
		e.StudyUID,
		e.PrimarySeriesUID,
		e.SecondarySeriesUID,
	}
}

// ProgressSink appends CSV progress lines.
type ProgressSink struct {
	out *appender
	now func() time.Time
}

// NewProgressSink returns a sink appending to path. An empty path yields a
// sink that discards entries.
func NewProgressSink(path string, opts Options) *ProgressSink {
	return &ProgressSink{out: newAppender(path, opts, "progress_log"), now: time.Now}
}

// Path returns the destination file.
func (s *ProgressSink) Path() string {
	if s == nil || s.out == nil {
		return ""
	}
	return s.out.path
}

// Record appends one entry, stamping it with the current time when unset.
func (s *ProgressSink) Record(entry Entry) error {
	if s == nil {
		return nil
	}
	if entry.Time.IsZero() {
		entry.Time = s.now()
	}
	return s.out.write(func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(entry.Fields()); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}
