package imaging

import (
	"fmt"
	"io"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// headerFields is the study metadata pulled from one DICOM instance.
type headerFields struct {
	StudyInstanceUID   string
	PatientID          string
	PatientName        string
	Modality           string
	StudyDate          string
	Description        string
	InstitutionName    string
	ReferringPhysician string
}

// parseHeader reads the header of a single DICOM object, skipping pixel
// data entirely.
func parseHeader(r io.Reader, size int64) (*headerFields, error) {
	ds, err := dicom.Parse(r, size, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse dicom: %w", err)
	}

	h := &headerFields{
		StudyInstanceUID:   tagString(&ds, tag.StudyInstanceUID),
		PatientID:          tagString(&ds, tag.PatientID),
		PatientName:        tagString(&ds, tag.PatientName),
		Modality:           tagString(&ds, tag.Modality),
		StudyDate:          tagString(&ds, tag.StudyDate),
		Description:        tagString(&ds, tag.StudyDescription),
		InstitutionName:    tagString(&ds, tag.InstitutionName),
		ReferringPhysician: tagString(&ds, tag.ReferringPhysicianName),
	}
	if h.StudyInstanceUID == "" {
		return nil, fmt.Errorf("dicom object has no StudyInstanceUID")
	}
	return h, nil
}

func tagString(ds *dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	vals := dicom.MustGetStrings(el.Value)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
