package fhirmap

import "time"

// External identifier types accepted for South African patients.
const (
	IDTypeNationalID = "sa_id_number"
	IDTypeMedicalAid = "medical_aid"
	IDTypePassport   = "passport"
)

// idSystems maps each identifier type to its FHIR system URI.
var idSystems = map[string]string{
	IDTypeNationalID: "http://www.health.gov.za/identifier/said",
	IDTypeMedicalAid: "http://www.health.gov.za/identifier/medical-aid",
	IDTypePassport:   "http://hl7.org/fhir/sid/passport",
}

func ValidIDType(t string) bool {
	_, ok := idSystems[t]
	return ok
}

// Mapping ties a local EMR patient ID to its FHIR resource UUID.
type Mapping struct {
	LocalID   string    `json:"local_id"`
	FHIRUUID  string    `json:"fhir_uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// ExternalID is one additional identifier attached to a mapped patient.
type ExternalID struct {
	ID       string `json:"id"`
	FHIRUUID string `json:"-"`
	IDType   string `json:"id_type"`
	IDValue  string `json:"id_value"`
	IDSystem string `json:"id_system"`
}

// Identifier is a FHIR R4 Identifier element.
type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system"`
	Value  string `json:"value"`
}

// IdentifierBundle is the full identifier set for one patient, shaped
// for embedding in a FHIR Patient resource.
type IdentifierBundle struct {
	LocalID     string       `json:"local_id"`
	FHIRUUID    string       `json:"fhir_uuid"`
	Identifiers []Identifier `json:"identifiers"`
}

type RegisterRequest struct {
	LocalID  string `json:"local_id"`
	FHIRUUID string `json:"fhir_uuid,omitempty"` // generated when absent
}

type AddExternalIDRequest struct {
	IDType  string `json:"id_type"`
	IDValue string `json:"id_value"`
}
