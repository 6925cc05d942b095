package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"studypair/internal/joblog"
	"studypair/internal/services"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		id           string
		startedRaw   string
		finishedRaw  sql.NullString
		status       string
		inputsRaw    string
		ruleFile     sql.NullString
		workflow     sql.NullString
		recordCount  int
		pairCount    int
		processed    int
		skipped      int
		errorKind    sql.NullString
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&startedRaw,
		&finishedRaw,
		&status,
		&inputsRaw,
		&ruleFile,
		&workflow,
		&recordCount,
		&pairCount,
		&processed,
		&skipped,
		&errorKind,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:           id,
		StartedAt:    parseTime(startedRaw),
		Status:       RunStatus(status),
		RuleFile:     ruleFile.String,
		Workflow:     workflow.String,
		RecordCount:  recordCount,
		PairCount:    pairCount,
		Processed:    processed,
		Skipped:      skipped,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
	}
	if finishedRaw.Valid {
		run.FinishedAt = parseTime(finishedRaw.String)
	}
	if err := json.Unmarshal([]byte(inputsRaw), &run.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs for run %s: %w", id, err)
	}
	return run, nil
}

func scanDecision(scanner rowScanner) (Decision, error) {
	var (
		d                                  Decision
		status, decidedRaw                 string
		patientName, patientID, accession  sql.NullString
		studyUID, primarySeries, secondary sql.NullString
		primaryFolder, secondaryFolder     sql.NullString
	)
	if err := scanner.Scan(
		&d.RunID,
		&d.Index,
		&status,
		&patientName,
		&patientID,
		&accession,
		&studyUID,
		&primarySeries,
		&secondary,
		&primaryFolder,
		&secondaryFolder,
		&decidedRaw,
	); err != nil {
		return Decision{}, err
	}
	d.Status = joblog.Status(status)
	d.PatientName = patientName.String
	d.PatientID = patientID.String
	d.AccessionNumber = accession.String
	d.StudyUID = studyUID.String
	d.PrimarySeriesUID = primarySeries.String
	d.SecondarySeriesUID = secondary.String
	d.PrimaryFolder = primaryFolder.String
	d.SecondaryFolder = secondaryFolder.String
	d.DecidedAt = parseTime(decidedRaw)
	return d, nil
}

func requireRow(res sql.Result, runID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "history", "update run", runID, nil)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
