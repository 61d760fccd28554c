package telemed

import "time"

const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

var statusTransitions = map[string][]string{
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Consultation types.
const (
	TypeSecondOpinion = "second_opinion"
	TypeMDTReview     = "mdt_review"
	TypeFollowUp      = "follow_up"
	TypeEmergency     = "emergency"
)

var ConsultationTypes = []string{TypeSecondOpinion, TypeMDTReview, TypeFollowUp, TypeEmergency}

func validConsultationType(t string) bool {
	for _, v := range ConsultationTypes {
		if v == t {
			return true
		}
	}
	return false
}

const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

func validUrgency(u string) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type Consultation struct {
	ConsultationID       string     `json:"consultation_id"`
	PatientID            string     `json:"patient_id"`
	StudyUID             string     `json:"study_uid,omitempty"`
	ConsultationType     string     `json:"consultation_type"`
	Status               string     `json:"status"`
	ScheduledTime        time.Time  `json:"scheduled_time"`
	DurationMinutes      int        `json:"duration_minutes"`
	RequestingDoctorID   string     `json:"requesting_doctor_id"`
	ConsultingSpecialist string     `json:"consulting_specialist_id"`
	HospitalID           string     `json:"hospital_id,omitempty"`
	SpecialistHospitalID string     `json:"specialist_hospital_id,omitempty"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	ClinicalQuestion     string     `json:"clinical_question,omitempty"`
	UrgencyLevel         string     `json:"urgency_level"`
	MeetingRoomID        string     `json:"meeting_room_id,omitempty"`
	ConsultationNotes    string     `json:"consultation_notes,omitempty"`
	Diagnosis            string     `json:"diagnosis,omitempty"`
	Recommendations      string     `json:"recommendations,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
}

type Participant struct {
	ParticipantID  string     `json:"participant_id"`
	ConsultationID string     `json:"consultation_id"`
	UserID         string     `json:"user_id"`
	Username       string     `json:"username"`
	Role           string     `json:"role"`
	HospitalID     string     `json:"hospital_id,omitempty"`
	JoinedAt       *time.Time `json:"joined_at,omitempty"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
}

type ScheduleRequest struct {
	PatientID            string    `json:"patient_id"`
	StudyUID             string    `json:"study_uid"`
	ConsultationType     string    `json:"consultation_type"`
	ScheduledTime        time.Time `json:"scheduled_time"`
	DurationMinutes      int       `json:"duration_minutes"`
	ConsultingSpecialist string    `json:"consulting_specialist_id"`
	HospitalID           string    `json:"hospital_id"`
	SpecialistHospitalID string    `json:"specialist_hospital_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	ClinicalQuestion     string    `json:"clinical_question"`
	UrgencyLevel         string    `json:"urgency_level"`
}

type CompleteRequest struct {
	ConsultationNotes string `json:"consultation_notes"`
	Diagnosis         string `json:"diagnosis"`
	Recommendations   string `json:"recommendations"`
}

type AddParticipantRequest struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id"`
}
