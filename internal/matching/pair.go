package matching

// Pair is one functional/anatomical series pairing anchored to a study.
type Pair struct {
	PatientName                  string
	PatientID                    string
	AccessionNumber              string
	StudyUID                     string
	PrimarySeriesUID             string
	SecondarySeriesUID           string
	PrimaryFilesFolder           string
	SecondaryFilesFolder         string
	PrimarySliceCount            int
	SecondarySliceCount          int
	PrimaryFrameOfReferenceUID   string
	SecondaryFrameOfReferenceUID string
}

// Complete reports whether both series identifiers are non-empty.
func (p Pair) Complete() bool {
	return p.PrimarySeriesUID != "" && p.SecondarySeriesUID != ""
}

// swapGroup is the identity two pairs must share before the slice-count swap
// may exchange their secondary series.
type swapGroup struct {
	patientName, patientID, accession, studyUID string
	primaryFrame, secondaryFrame                string
}

func (p Pair) group() swapGroup {
	return swapGroup{
		patientName:    p.PatientName,
		patientID:      p.PatientID,
		accession:      p.AccessionNumber,
		studyUID:       p.StudyUID,
		primaryFrame:   p.PrimaryFrameOfReferenceUID,
		secondaryFrame: p.SecondaryFrameOfReferenceUID,
	}
}
