package reporting

import "time"

// Report workflow statuses, in order.
const (
	StatusDraft       = "draft"
	StatusDictated    = "dictated"
	StatusTranscribed = "transcribed"
	StatusReviewed    = "reviewed"
	StatusAuthorized  = "authorized"
)

// allowedTransitions maps a status to the statuses it may move to.
var allowedTransitions = map[string][]string{
	StatusDraft:       {StatusDictated},
	StatusDictated:    {StatusTranscribed},
	StatusTranscribed: {StatusReviewed, StatusDictated},
	StatusReviewed:    {StatusAuthorized, StatusTranscribed},
	StatusAuthorized:  {},
}

func canTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Report struct {
	ID               string     `json:"id"`
	StudyInstanceUID string     `json:"study_instance_uid"`
	PatientID        string     `json:"patient_id"`
	RadiologistID    string     `json:"radiologist_id"`
	TypistID         string     `json:"typist_id,omitempty"`
	Status           string     `json:"status"`
	Findings         string     `json:"findings,omitempty"`
	Impression       string     `json:"impression,omitempty"`
	Recommendations  string     `json:"recommendations,omitempty"`
	ClinicalData     string     `json:"clinical_data"` // JSON document
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	AuthorizedAt     *time.Time `json:"authorized_at,omitempty"`
}

type CreateRequest struct {
	StudyInstanceUID string `json:"study_instance_uid"`
	PatientID        string `json:"patient_id"`
	Findings         string `json:"findings"`
	Impression       string `json:"impression"`
	Recommendations  string `json:"recommendations"`
}

type UpdateRequest struct {
	Findings        *string `json:"findings,omitempty"`
	Impression      *string `json:"impression,omitempty"`
	Recommendations *string `json:"recommendations,omitempty"`
}

type TransitionRequest struct {
	Status string `json:"status"`
}

// ClinicalData holds the structured measurements extracted from a
// report. All fields are optional; nil means not measured.
type ClinicalData struct {
	EjectionFraction *float64 `json:"ejection_fraction,omitempty"` // %
	LVMass           *float64 `json:"lv_mass,omitempty"`           // grams
	CalciumScore     *float64 `json:"calcium_score,omitempty"`     // Agatston
	CBF              *float64 `json:"cbf,omitempty"`               // mL/100g/min
	MTT              *float64 `json:"mtt,omitempty"`               // seconds
	IschemiaExtent   *float64 `json:"ischemia_extent,omitempty"`   // %
	BIRADS           *int     `json:"birads,omitempty"`
}

// ValidationResult is the normalized clinical findings document plus
// any range warnings or errors.
type ValidationResult struct {
	Data     ClinicalData `json:"data"`
	Warnings []string     `json:"warnings,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
	Valid    bool         `json:"valid"`
}

type SearchFilters struct {
	PatientID     string
	StudyUID      string
	RadiologistID string
	Status        string
}
