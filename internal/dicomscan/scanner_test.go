package dicomscan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"studypair/internal/logging"
	"studypair/internal/series"
	"studypair/internal/services"
)

type fakeReader struct {
	mu      sync.Mutex
	headers map[string]series.Header
	calls   []string
}

func (f *fakeReader) ReadHeader(path string) (series.Header, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	h, ok := f.headers[filepath.Base(path)]
	if !ok {
		return series.Header{}, errors.New("not dicom")
	}
	return h, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func newTestScanner(reader HeaderReader, workers int) *Scanner {
	return New(Options{
		Reader:     reader,
		Classifier: series.Classifier{VolumetricMinSlices: 2},
		Extensions: []string{".dcm", ""},
		Workers:    workers,
		Logger:     logging.NewNop(),
	})
}

func TestScanOneRecordPerFolder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "pet"), "a.dcm", "b.dcm", "c.dcm")
	writeFiles(t, filepath.Join(root, "ct"), "IM0001", "IM0002", "notes.txt")

	reader := &fakeReader{headers: map[string]series.Header{
		"a.dcm":  {StudyUID: "ST1", SeriesUID: "S1", Modality: "pt", CorrectedImage: []string{"ATTN"}},
		"IM0001": {StudyUID: "ST1", SeriesUID: "S2", Modality: "CT"},
	}}
	records, err := newTestScanner(reader, 4).Scan(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	// WalkDir visits siblings in lexical order.
	if records[0].SeriesUID != "S2" || records[1].SeriesUID != "S1" {
		t.Fatalf("unexpected order: %s, %s", records[0].SeriesUID, records[1].SeriesUID)
	}
	if records[0].SliceCount != 2 {
		t.Fatalf("ct slice count = %d, want 2 (txt ignored)", records[0].SliceCount)
	}
	if records[1].SliceCount != 3 || records[1].Modality != "PT" {
		t.Fatalf("unexpected pet record: %+v", records[1])
	}
	if records[1].FilesFolder != filepath.Join(root, "pet") {
		t.Fatalf("folder = %q", records[1].FilesFolder)
	}
}

func TestScanFallsBackToNextReadableFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "01.dcm", "02.dcm")
	reader := &fakeReader{headers: map[string]series.Header{
		"02.dcm": {StudyUID: "ST1", SeriesUID: "S1", Modality: "CT"},
	}}
	records, err := newTestScanner(reader, 1).Scan(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 || records[0].SeriesUID != "S1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestScanSkipsUnreadableFolders(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "junk"), "x.dcm")
	writeFiles(t, filepath.Join(root, "good"), "y.dcm")
	reader := &fakeReader{headers: map[string]series.Header{
		"y.dcm": {StudyUID: "ST1", SeriesUID: "S1", Modality: "CT"},
	}}
	records, err := newTestScanner(reader, 2).Scan(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
}

func TestScanDeduplicatesSeriesUID(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "a"), "1.dcm")
	writeFiles(t, filepath.Join(root, "b"), "2.dcm")
	writeFiles(t, filepath.Join(root, "c"), "3.dcm")
	reader := &fakeReader{headers: map[string]series.Header{
		"1.dcm": {StudyUID: "ST1", SeriesUID: "S1", Modality: "CT"},
		"2.dcm": {StudyUID: "ST1", SeriesUID: "S1", Modality: "CT"},
		"3.dcm": {StudyUID: "ST1", Modality: "CT"},
	}}
	records, err := newTestScanner(reader, 3).Scan(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %+v", records)
	}
	if records[0].FilesFolder != filepath.Join(root, "a") {
		t.Fatalf("first folder should win, got %q", records[0].FilesFolder)
	}
}

func TestScanSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, ".cache"), "1.dcm")
	writeFiles(t, root, ".hidden.dcm", "DICOMDIR")
	reader := &fakeReader{headers: map[string]series.Header{
		"1.dcm":       {SeriesUID: "S1"},
		".hidden.dcm": {SeriesUID: "S2"},
		"DICOMDIR":    {SeriesUID: "S3"},
	}}
	records, err := newTestScanner(reader, 1).Scan(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
	if len(reader.calls) != 0 {
		t.Fatalf("reader should not be called, got %v", reader.calls)
	}
}

func TestScanMissingInput(t *testing.T) {
	_, err := newTestScanner(&fakeReader{}, 1).Scan(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanRejectsFileInput(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "one.dcm")
	_, err := newTestScanner(&fakeReader{}, 1).Scan(context.Background(), []string{filepath.Join(root, "one.dcm")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestScanHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "a"), "1.dcm")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestScanner(&fakeReader{}, 1).Scan(ctx, []string{root})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDICOMReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dcm")
	if err := os.WriteFile(path, []byte("definitely not a dicom file"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := DICOMReader{}.ReadHeader(path)
	if err == nil || !strings.Contains(err.Error(), "parse dicom") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
