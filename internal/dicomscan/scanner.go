package dicomscan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"studypair/internal/logging"
	"studypair/internal/series"
	"studypair/internal/services"
)

// Options configures a Scanner.
type Options struct {
	Reader     HeaderReader
	Classifier series.Classifier
	// Extensions lists accepted lower-case file extensions; "" accepts files
	// without an extension.
	Extensions []string
	Workers    int
	Logger     *slog.Logger
}

// Scanner extracts one record per series folder.
type Scanner struct {
	reader     HeaderReader
	classifier series.Classifier
	extensions map[string]struct{}
	workers    int
	logger     *slog.Logger
}

// New constructs a Scanner. A nil Reader defaults to DICOMReader.
func New(opts Options) *Scanner {
	reader := opts.Reader
	if reader == nil {
		reader = DICOMReader{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		reader:     reader,
		classifier: opts.Classifier,
		extensions: exts,
		workers:    workers,
		logger:     logging.NewComponentLogger(opts.Logger, "scan"),
	}
}

type folder struct {
	path  string
	files []string
}

// Scan walks dirs and returns one record per series folder in folder order.
// Folders whose files cannot be read are skipped with a warning; records
// repeating an earlier series UID are dropped.
func (s *Scanner) Scan(ctx context.Context, dirs []string) ([]series.Record, error) {
	var folders []folder
	for _, dir := range dirs {
		found, err := s.collectFolders(dir)
		if err != nil {
			return nil, err
		}
		folders = append(folders, found...)
	}

	results := make([]*series.Record, len(folders))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for idx, f := range folders {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			rec, err := s.readFolder(f)
			if err != nil {
				s.logger.Warn("series folder skipped",
					logging.String("folder", f.path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "scan_folder_skipped"),
					logging.String(logging.FieldErrorHint, "check the folder holds readable DICOM files"),
				)
				return nil
			}
			results[idx] = &rec
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	records := make([]series.Record, 0, len(results))
	seen := make(map[string]string, len(results))
	for _, rec := range results {
		if rec == nil {
			continue
		}
		if rec.SeriesUID == "" {
			s.logger.Warn("series folder has no series UID; skipped",
				logging.String("folder", rec.FilesFolder),
				logging.String(logging.FieldEventType, "scan_missing_series_uid"),
			)
			continue
		}
		if prior, dup := seen[rec.SeriesUID]; dup {
			s.logger.Warn("duplicate series UID; keeping first folder",
				logging.String(logging.FieldSeriesUID, rec.SeriesUID),
				logging.String("folder", rec.FilesFolder),
				logging.String("kept_folder", prior),
				logging.String(logging.FieldEventType, "scan_duplicate_series"),
			)
			continue
		}
		seen[rec.SeriesUID] = rec.FilesFolder
		records = append(records, *rec)
	}

	s.logger.Info("scan complete",
		logging.Int("inputs", len(dirs)),
		logging.Int("folders", len(folders)),
		logging.Int("records", len(records)),
	)
	return records, nil
}

func (s *Scanner) collectFolders(root string) ([]folder, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "scan", "stat input", root, err)
		}
		return nil, fmt.Errorf("stat input %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "scan", "stat input", root+" is not a directory", nil)
	}

	var folders []folder
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		files, err := s.candidateFiles(path)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			folders = append(folders, folder{path: path, files: files})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input %s: %w", root, err)
	}
	return folders, nil
}

func (s *Scanner) candidateFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.EqualFold(name, "DICOMDIR") {
			continue
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scanner) readFolder(f folder) (series.Record, error) {
	var lastErr error
	for _, path := range f.files {
		header, err := s.reader.ReadHeader(path)
		if err != nil {
			lastErr = err
			continue
		}
		header.FileCount = len(f.files)
		header.Folder = f.path
		return s.classifier.Classify(header), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate files")
	}
	return series.Record{}, lastErr
}
