package series

// Scan roles derived by Classify.
const (
	RoleAttenuationCorrected = "AC"
	RoleNonCorrected         = "NAC"
	RoleLocalizer            = "LOCALIZER"
	RoleStandard             = "STANDARD"
)

// Orientations derived by Classify.
const (
	OrientationAxial    = "AXIAL"
	OrientationCoronal  = "CORONAL"
	OrientationSagittal = "SAGITTAL"
	OrientationOblique  = "OBLIQUE"
	OrientationUnknown  = "UNKNOWN"
)

// Record is the representative metadata of one series folder.
type Record struct {
	PatientName         string
	PatientID           string
	AccessionNumber     string
	StudyUID            string
	SeriesUID           string
	FrameOfReferenceUID string
	Modality            string
	ScanRole            string
	Orientation         string
	IsVolumetric        bool
	SliceCount          int
	FilesFolder         string
}

// Header carries the raw header fields the classifier works from. The
// scanner fills it from one representative file per folder.
type Header struct {
	PatientName         string
	PatientID           string
	AccessionNumber     string
	StudyUID            string
	SeriesUID           string
	FrameOfReferenceUID string
	Modality            string
	SeriesDescription   string
	ImageType           []string
	CorrectedImage      []string
	AttenuationMethod   string
	// ImageOrientation is the six direction cosines of ImageOrientationPatient.
	ImageOrientation []float64
	MRAcquisitionType string
	NumberOfFrames    int
	FileCount         int
	Folder            string
}
