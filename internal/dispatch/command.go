package dispatch

import (
	"path/filepath"
	"strings"

	"studypair/internal/matching"
)

// Placeholders recognised in argument templates.
const (
	PlaceholderWorkflow        = "{workflow}"
	PlaceholderPrimaryDir      = "{primary_dir}"
	PlaceholderSecondaryDir    = "{secondary_dir}"
	PlaceholderOutputDir       = "{output_dir}"
	PlaceholderStudyUID        = "{study_uid}"
	PlaceholderPatientID       = "{patient_id}"
	PlaceholderAccession       = "{accession}"
	PlaceholderPrimarySeries   = "{primary_series}"
	PlaceholderSecondarySeries = "{secondary_series}"
)

// JobLogName is the per-pair file receiving the job's stdout and stderr.
const JobLogName = "job.log"

// Command describes how one pair becomes a process invocation.
type Command struct {
	Binary   string
	Args     []string
	Workflow string
	// OutputDir is the batch output root; each pair gets its own directory
	// beneath it.
	OutputDir string
}

// JobDir returns the pair's output directory. The primary series UID keeps
// pairs from the same study apart; a series belongs to at most one pair.
func (c Command) JobDir(pair matching.Pair) string {
	name := strings.Join([]string{
		sanitizeSegment(pair.PatientID),
		sanitizeSegment(pair.StudyUID),
		sanitizeSegment(pair.PrimarySeriesUID),
	}, "_")
	return filepath.Join(c.OutputDir, name)
}

// Expand substitutes the pair's values into the argument template.
func (c Command) Expand(pair matching.Pair) []string {
	replacer := strings.NewReplacer(
		PlaceholderWorkflow, c.Workflow,
		PlaceholderPrimaryDir, pair.PrimaryFilesFolder,
		PlaceholderSecondaryDir, pair.SecondaryFilesFolder,
		PlaceholderOutputDir, c.JobDir(pair),
		PlaceholderStudyUID, pair.StudyUID,
		PlaceholderPatientID, pair.PatientID,
		PlaceholderAccession, pair.AccessionNumber,
		PlaceholderPrimarySeries, pair.PrimarySeriesUID,
		PlaceholderSecondarySeries, pair.SecondarySeriesUID,
	)
	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		args = append(args, replacer.Replace(arg))
	}
	return args
}

// sanitizeSegment keeps identifiers safe for use as one path element.
func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}
