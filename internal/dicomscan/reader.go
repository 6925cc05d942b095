package dicomscan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"studypair/internal/series"
)

// HeaderReader extracts series header fields from one file.
type HeaderReader interface {
	ReadHeader(path string) (series.Header, error)
}

// DICOMReader reads headers with the pixel data skipped.
type DICOMReader struct{}

// ReadHeader parses path and copies the fields the classifier needs.
func (DICOMReader) ReadHeader(path string) (series.Header, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return series.Header{}, fmt.Errorf("parse dicom %s: %w", path, err)
	}
	h := series.Header{
		PatientName:         first(ds, tag.PatientName),
		PatientID:           first(ds, tag.PatientID),
		AccessionNumber:     first(ds, tag.AccessionNumber),
		StudyUID:            first(ds, tag.StudyInstanceUID),
		SeriesUID:           first(ds, tag.SeriesInstanceUID),
		FrameOfReferenceUID: first(ds, tag.FrameOfReferenceUID),
		Modality:            first(ds, tag.Modality),
		SeriesDescription:   first(ds, tag.SeriesDescription),
		ImageType:           values(ds, tag.ImageType),
		CorrectedImage:      values(ds, tag.CorrectedImage),
		AttenuationMethod:   first(ds, tag.AttenuationCorrectionMethod),
		MRAcquisitionType:   first(ds, tag.MRAcquisitionType),
	}
	for _, raw := range values(ds, tag.ImageOrientationPatient) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			h.ImageOrientation = nil
			break
		}
		h.ImageOrientation = append(h.ImageOrientation, f)
	}
	if frames, err := strconv.Atoi(first(ds, tag.NumberOfFrames)); err == nil {
		h.NumberOfFrames = frames
	}
	return h, nil
}

// values renders an element's value as strings whatever its VR.
func values(ds dicom.Dataset, t tag.Tag) []string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return nil
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, strings.TrimRight(strings.TrimSpace(s), "\x00"))
		}
		return out
	case []int:
		out := make([]string, 0, len(v))
		for _, n := range v {
			out = append(out, strconv.Itoa(n))
		}
		return out
	case []float64:
		out := make([]string, 0, len(v))
		for _, f := range v {
			out = append(out, strconv.FormatFloat(f, 'g', -1, 64))
		}
		return out
	}
	return nil
}

func first(ds dicom.Dataset, t tag.Tag) string {
	vals := values(ds, t)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
