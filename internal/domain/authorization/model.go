package authorization

import (
	"regexp"
	"time"
)

// Access levels grantable on a patient or study.
const (
	AccessViewOnly     = "view_only"
	AccessDownload     = "download"
	AccessAnnotate     = "annotate"
	AccessReportAccess = "report_access"
	AccessShare        = "share"
	AccessFullAccess   = "full_access"
)

// Doctor-level access tiers. A doctor with DoctorAccessAdmin bypasses
// per-patient authorization checks.
const (
	DoctorAccessView  = "view"
	DoctorAccessFull  = "full"
	DoctorAccessAdmin = "admin"
)

// HPCSAPattern matches South African HPCSA practitioner registration
// numbers: MP followed by 6-7 digits.
var HPCSAPattern = regexp.MustCompile(`^MP\d{6,7}$`)

func ValidAccessLevel(level string) bool {
	switch level {
	case AccessViewOnly, AccessDownload, AccessAnnotate, AccessReportAccess, AccessShare, AccessFullAccess:
		return true
	}
	return false
}

// ReferringDoctor is an external practitioner who may be granted access
// to patient records.
type ReferringDoctor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	HPCSANumber  string    `json:"hpcsa_number"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PracticeName string    `json:"practice_name"`
	Specialty    string    `json:"specialty"`
	AccessLevel  string    `json:"access_level"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Authorization grants a doctor access to one patient, optionally scoped
// to a single study.
type Authorization struct {
	ID               string     `json:"id"`
	DoctorID         string     `json:"doctor_id"`
	PatientID        string     `json:"patient_id"`
	StudyInstanceUID string     `json:"study_instance_uid,omitempty"`
	AccessLevel      string     `json:"access_level"`
	GrantedBy        string     `json:"granted_by"`
	GrantedAt        time.Time  `json:"granted_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	AccessCount      int        `json:"access_count"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	AccessReason     string     `json:"access_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokedBy        string     `json:"revoked_by,omitempty"`
	RevokedReason    string     `json:"revoked_reason,omitempty"`
}

// GrantRequest is the payload for creating an authorization.
type GrantRequest struct {
	DoctorID         string     `json:"doctor_id"`
	PatientID        string     `json:"patient_id"`
	StudyInstanceUID string     `json:"study_instance_uid"`
	AccessLevel      string     `json:"access_level"`
	ExpiresAt        *time.Time `json:"expires_at"`
	Notes            string     `json:"notes"`
	AccessReason     string     `json:"access_reason"`
}

// UpdateAuthRequest carries the mutable fields of an active
// authorization. Nil fields are left unchanged.
type UpdateAuthRequest struct {
	AccessLevel  *string `json:"access_level"`
	Notes        *string `json:"notes"`
	AccessReason *string `json:"access_reason"`
}

// AccessDecision is the result of a doctor access check.
type AccessDecision struct {
	HasAccess     bool           `json:"has_access"`
	AccessLevel   string         `json:"access_level"`
	Authorization *Authorization `json:"authorization,omitempty"`
}

// Stats summarises authorization state.
type Stats struct {
	TotalAuthorizations  int            `json:"total_authorizations"`
	ActiveAuthorizations int            `json:"active_authorizations"`
	ExpiringSoon         int            `json:"expiring_soon"`
	ByAccessLevel        map[string]int `json:"by_access_level"`
}
