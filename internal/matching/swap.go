package matching

import "studypair/internal/logging"

// correctSwaps exchanges the secondary series of two pairs from the same
// study and frame-of-reference group when each primary is closer in slice
// count to the other pair's secondary. Groups larger than two are handled
// pairwise in order; the result for them is not guaranteed to be optimal.
func (e *Engine) correctSwaps(pairs []Pair) {
	sizes := make(map[swapGroup]int)
	for _, p := range pairs {
		sizes[p.group()]++
	}
	for group, size := range sizes {
		if size > 2 {
			e.logger.Warn("swap correction applied to group of more than two pairs",
				logging.String(logging.FieldStudyUID, group.studyUID),
				logging.Int("group_size", size),
				logging.String(logging.FieldEventType, "swap_group_oversized"),
				logging.String(logging.FieldErrorHint, "verify the pairing of this study manually"),
			)
		}
	}

	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[i].group() != pairs[j].group() {
				continue
			}
			if !shouldSwap(pairs[i], pairs[j]) {
				continue
			}
			swapSecondary(&pairs[i], &pairs[j])
			e.logger.Debug("swapped secondary series by slice count",
				logging.String(logging.FieldStudyUID, pairs[i].StudyUID),
				logging.String("primary_a", pairs[i].PrimarySeriesUID),
				logging.String("secondary_a", pairs[i].SecondarySeriesUID),
				logging.String("primary_b", pairs[j].PrimarySeriesUID),
				logging.String("secondary_b", pairs[j].SecondarySeriesUID),
			)
		}
	}
}

func shouldSwap(a, b Pair) bool {
	dPP := absDiff(a.PrimarySliceCount, b.PrimarySliceCount)
	dPS := absDiff(a.PrimarySliceCount, b.SecondarySliceCount)
	dSP := absDiff(a.SecondarySliceCount, b.PrimarySliceCount)
	dSS := absDiff(a.SecondarySliceCount, b.SecondarySliceCount)
	return dPS < dPP && dSP < dSS
}

func swapSecondary(a, b *Pair) {
	a.SecondarySeriesUID, b.SecondarySeriesUID = b.SecondarySeriesUID, a.SecondarySeriesUID
	a.SecondaryFilesFolder, b.SecondaryFilesFolder = b.SecondaryFilesFolder, a.SecondaryFilesFolder
	a.SecondarySliceCount, b.SecondarySliceCount = b.SecondarySliceCount, a.SecondarySliceCount
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
