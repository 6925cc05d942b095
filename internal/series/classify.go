package series

import (
	"math"
	"strings"
)

// obliqueThreshold is the minimum |component| of the slice normal for a
// series to count as aligned with a patient axis.
const obliqueThreshold = 0.8

// Classifier derives the tag triple used by match rules.
type Classifier struct {
	// VolumetricMinSlices is the slice count at or above which a stack is
	// treated as a volume when the header does not say so explicitly.
	VolumetricMinSlices int
}

// Classify converts a raw header into a Record.
func (c Classifier) Classify(h Header) Record {
	slices := h.FileCount
	if slices <= 1 && h.NumberOfFrames > 1 {
		slices = h.NumberOfFrames
	}
	role := ScanRole(h)
	return Record{
		PatientName:         strings.TrimSpace(h.PatientName),
		PatientID:           strings.TrimSpace(h.PatientID),
		AccessionNumber:     strings.TrimSpace(h.AccessionNumber),
		StudyUID:            strings.TrimSpace(h.StudyUID),
		SeriesUID:           strings.TrimSpace(h.SeriesUID),
		FrameOfReferenceUID: strings.TrimSpace(h.FrameOfReferenceUID),
		Modality:            strings.ToUpper(strings.TrimSpace(h.Modality)),
		ScanRole:            role,
		Orientation:         Orientation(h.ImageOrientation),
		IsVolumetric:        c.volumetric(h, role, slices),
		SliceCount:          slices,
		FilesFolder:         h.Folder,
	}
}

func (c Classifier) volumetric(h Header, role string, slices int) bool {
	if role == RoleLocalizer {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(h.MRAcquisitionType), "3D") {
		return true
	}
	minSlices := c.VolumetricMinSlices
	if minSlices <= 0 {
		minSlices = 2
	}
	return slices >= minSlices
}

// ScanRole classifies a series as attenuation-corrected, non-corrected,
// localizer, or standard from its header keywords.
func ScanRole(h Header) string {
	for _, value := range h.ImageType {
		if strings.EqualFold(strings.TrimSpace(value), "LOCALIZER") {
			return RoleLocalizer
		}
	}

	description := " " + normalizeKeywords(h.SeriesDescription) + " "
	for _, marker := range []string{" NAC ", " NOAC ", " NON AC ", " UNCORRECTED ", " NO AC "} {
		if strings.Contains(description, marker) {
			return RoleNonCorrected
		}
	}
	for _, value := range h.CorrectedImage {
		if strings.EqualFold(strings.TrimSpace(value), "ATTN") {
			return RoleAttenuationCorrected
		}
	}
	if strings.TrimSpace(h.AttenuationMethod) != "" {
		return RoleAttenuationCorrected
	}
	for _, marker := range []string{" AC ", " CTAC ", " ATTN "} {
		if strings.Contains(description, marker) {
			return RoleAttenuationCorrected
		}
	}
	if isEmissionModality(h.Modality) && len(h.CorrectedImage) > 0 {
		return RoleNonCorrected
	}
	return RoleStandard
}

// Orientation maps ImageOrientationPatient direction cosines onto the
// patient axis closest to the slice normal.
func Orientation(cosines []float64) string {
	if len(cosines) != 6 {
		return OrientationUnknown
	}
	row := cosines[0:3]
	col := cosines[3:6]
	normal := [3]float64{
		row[1]*col[2] - row[2]*col[1],
		row[2]*col[0] - row[0]*col[2],
		row[0]*col[1] - row[1]*col[0],
	}
	axis, best := 0, 0.0
	for i, v := range normal {
		if math.Abs(v) > best {
			axis, best = i, math.Abs(v)
		}
	}
	if best == 0 {
		return OrientationUnknown
	}
	if best < obliqueThreshold {
		return OrientationOblique
	}
	switch axis {
	case 0:
		return OrientationSagittal
	case 1:
		return OrientationCoronal
	default:
		return OrientationAxial
	}
}

func isEmissionModality(modality string) bool {
	switch strings.ToUpper(strings.TrimSpace(modality)) {
	case "PT", "NM":
		return true
	}
	return false
}

func normalizeKeywords(value string) string {
	upper := strings.ToUpper(value)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, upper)
}
