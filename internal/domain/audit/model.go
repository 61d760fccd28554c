package audit

import "time"

// Compliance categories used to bucket entries for POPIA reporting.
const (
	CategoryPHIAccess   = "phi_access"
	CategoryAuth        = "authentication"
	CategoryAdmin       = "administration"
	CategoryDataSharing = "data_sharing"
)

// Entry is a single audit log record. Details holds a JSON object with
// action-specific context.
type Entry struct {
	ID                 string    `json:"id"`
	ActorID            string    `json:"actor_id"`
	ActorType          string    `json:"actor_type"`
	Action             string    `json:"action"`
	ResourceType       string    `json:"resource_type"`
	ResourceID         string    `json:"resource_id"`
	PatientID          string    `json:"patient_id,omitempty"`
	StudyUID           string    `json:"study_uid,omitempty"`
	Details            string    `json:"details"`
	ComplianceCategory string    `json:"compliance_category"`
	SourceIP           string    `json:"source_ip"`
	UserAgent          string    `json:"user_agent"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// SearchFilters narrows an audit log search. Zero values are ignored.
type SearchFilters struct {
	ActorID      string
	Action       string
	ResourceType string
	PatientID    string
	StudyUID     string
	Category     string
	From         *time.Time
	To           *time.Time
}

// Stats summarises audit activity over a window.
type Stats struct {
	TotalEntries   int            `json:"total_entries"`
	ByAction       map[string]int `json:"by_action"`
	ByCategory     map[string]int `json:"by_category"`
	DistinctActors int            `json:"distinct_actors"`
}
