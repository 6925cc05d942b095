package matching

import (
	"log/slog"

	"studypair/internal/logging"
	"studypair/internal/rules"
	"studypair/internal/series"
)

type side int

const (
	sidePrimary side = iota
	sideSecondary
)

func (s side) opposite() side {
	if s == sidePrimary {
		return sideSecondary
	}
	return sidePrimary
}

type frameKey struct {
	side  side
	frame string
}

// Engine produces study pairs from classified series records.
type Engine struct {
	logger *slog.Logger
}

// NewEngine constructs a matching engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logging.NewComponentLogger(logger, "matching")}
}

// MatchFile loads the rule set at rulePath and matches records against it.
// A missing or malformed rule file yields no pairs and a *rules.ConfigurationError.
func (e *Engine) MatchFile(records []series.Record, rulePath string) ([]Pair, error) {
	set, err := rules.Load(rulePath)
	if err != nil {
		e.logger.Warn("rule set unavailable; no pairs produced",
			logging.String("rule_file", rulePath),
			logging.Error(err),
			logging.String(logging.FieldEventType, "rules_unavailable"),
			logging.String(logging.FieldErrorHint, "check the rule file exists and has two rule elements"),
		)
		return nil, err
	}
	return e.Match(records, set), nil
}

// Match pairs records according to set. Records that satisfy no rule are
// ignored; an empty result is not an error.
func (e *Engine) Match(records []series.Record, set rules.Set) []Pair {
	index := buildFrameIndex(records, set)
	studyOrder, byStudy := groupByStudy(records)

	claimed := make(map[string]struct{})
	var proposed []Pair
	for _, studyUID := range studyOrder {
		members := byStudy[studyUID]
		var primaries, secondaries []int
		for _, idx := range members {
			rec := records[idx]
			if set.Primary.Matches(rec) && index.linked(rec, sideSecondary) {
				primaries = append(primaries, idx)
			}
			if set.Secondary.Matches(rec) && index.linked(rec, sidePrimary) {
				secondaries = append(secondaries, idx)
			}
		}
		for _, pi := range primaries {
			link := index.claim(records[pi], set.Secondary, claimed)
			for _, si := range secondaries {
				if records[si].SeriesUID == link {
					proposed = append(proposed, newPair(records[pi], records[si]))
				}
			}
		}
	}

	accepted := dedupe(proposed)
	e.correctSwaps(accepted)

	e.logger.Info("matching complete",
		logging.Int("records", len(records)),
		logging.Int("studies", len(studyOrder)),
		logging.Int("proposed", len(proposed)),
		logging.Int("pairs", len(accepted)),
		logging.String("primary_rule", set.Primary.String()),
		logging.String("secondary_rule", set.Secondary.String()),
	)
	return accepted
}

// frameIndex maps (rule side, frame of reference) to the records of that
// side's modality in input order.
type frameIndex map[frameKey][]series.Record

func buildFrameIndex(records []series.Record, set rules.Set) frameIndex {
	index := make(frameIndex)
	for _, rec := range records {
		if rec.FrameOfReferenceUID == "" {
			continue
		}
		if set.Primary.SameModality(rec) {
			key := frameKey{side: sidePrimary, frame: rec.FrameOfReferenceUID}
			index[key] = append(index[key], rec)
		}
		if set.Secondary.SameModality(rec) {
			key := frameKey{side: sideSecondary, frame: rec.FrameOfReferenceUID}
			index[key] = append(index[key], rec)
		}
	}
	return index
}

// linked reports whether some other record of the given side shares rec's
// frame of reference.
func (ix frameIndex) linked(rec series.Record, other side) bool {
	for _, candidate := range ix[frameKey{side: other, frame: rec.FrameOfReferenceUID}] {
		if candidate.SeriesUID != rec.SeriesUID {
			return true
		}
	}
	return false
}

// claim returns the series UID the primary record is linked to: the first
// record in its frame of reference satisfying the secondary rule that no
// earlier primary has claimed, or the first such record when all are claimed.
func (ix frameIndex) claim(primary series.Record, rule rules.Rule, claimed map[string]struct{}) string {
	var fallback string
	for _, candidate := range ix[frameKey{side: sideSecondary, frame: primary.FrameOfReferenceUID}] {
		if candidate.SeriesUID == primary.SeriesUID || !rule.Matches(candidate) {
			continue
		}
		if fallback == "" {
			fallback = candidate.SeriesUID
		}
		if _, taken := claimed[candidate.SeriesUID]; !taken {
			claimed[candidate.SeriesUID] = struct{}{}
			return candidate.SeriesUID
		}
	}
	return fallback
}

func groupByStudy(records []series.Record) ([]string, map[string][]int) {
	var order []string
	byStudy := make(map[string][]int)
	for idx, rec := range records {
		if _, seen := byStudy[rec.StudyUID]; !seen {
			order = append(order, rec.StudyUID)
		}
		byStudy[rec.StudyUID] = append(byStudy[rec.StudyUID], idx)
	}
	return order, byStudy
}

func newPair(primary, secondary series.Record) Pair {
	return Pair{
		PatientName:                  primary.PatientName,
		PatientID:                    primary.PatientID,
		AccessionNumber:              primary.AccessionNumber,
		StudyUID:                     primary.StudyUID,
		PrimarySeriesUID:             primary.SeriesUID,
		SecondarySeriesUID:           secondary.SeriesUID,
		PrimaryFilesFolder:           primary.FilesFolder,
		SecondaryFilesFolder:         secondary.FilesFolder,
		PrimarySliceCount:            primary.SliceCount,
		SecondarySliceCount:          secondary.SliceCount,
		PrimaryFrameOfReferenceUID:   primary.FrameOfReferenceUID,
		SecondaryFrameOfReferenceUID: secondary.FrameOfReferenceUID,
	}
}

// dedupe keeps the first pair that uses each series UID, on either side.
func dedupe(proposed []Pair) []Pair {
	used := make(map[string]struct{}, len(proposed)*2)
	accepted := make([]Pair, 0, len(proposed))
	for _, pair := range proposed {
		if _, ok := used[pair.PrimarySeriesUID]; ok {
			continue
		}
		if _, ok := used[pair.SecondarySeriesUID]; ok {
			continue
		}
		used[pair.PrimarySeriesUID] = struct{}{}
		used[pair.SecondarySeriesUID] = struct{}{}
		accepted = append(accepted, pair)
	}
	return accepted
}
