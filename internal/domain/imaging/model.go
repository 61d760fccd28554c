package imaging

import "time"

// Study is PACS study metadata. Pixel data never enters this system;
// only header fields extracted on import.
type Study struct {
	ID                 string    `json:"id"`
	StudyInstanceUID   string    `json:"study_instance_uid"`
	PatientID          string    `json:"patient_id"`
	PatientName        string    `json:"patient_name,omitempty"`
	Modality           string    `json:"modality,omitempty"`
	StudyDate          string    `json:"study_date,omitempty"` // DICOM DA format, YYYYMMDD
	Description        string    `json:"description,omitempty"`
	InstitutionName    string    `json:"institution_name,omitempty"`
	ReferringPhysician string    `json:"referring_physician,omitempty"`
	InstanceCount      int       `json:"instance_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type CreateStudyRequest struct {
	StudyInstanceUID   string `json:"study_instance_uid"`
	PatientID          string `json:"patient_id"`
	PatientName        string `json:"patient_name"`
	Modality           string `json:"modality"`
	StudyDate          string `json:"study_date"`
	Description        string `json:"description"`
	InstitutionName    string `json:"institution_name"`
	ReferringPhysician string `json:"referring_physician"`
	InstanceCount      int    `json:"instance_count"`
}

type SearchFilters struct {
	PatientID string
	Modality  string
	DateFrom  string
	DateTo    string
}

// ImportResult reports what a DICOM header import produced.
type ImportResult struct {
	Study   *Study `json:"study"`
	Created bool   `json:"created"`
}
