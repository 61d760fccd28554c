package telemed

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

var (
	ErrNotFound             = errors.New("consultation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrDuplicateParticipant = errors.New("user is already a participant")
	ErrScheduleInPast       = errors.New("scheduled_time must be in the future")
)

// TransitionError reports an invalid status move.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move consultation from %s to %s", e.From, e.To)
}

type Service struct {
	repo    Repository
	auditor audit.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.With().Str("component", "telemed").Logger(),
		now:     time.Now,
	}
}

func (s *Service) Schedule(ctx context.Context, requestingDoctorID string, req ScheduleRequest) (*Consultation, error) {
	if req.PatientID == "" {
		return nil, errors.New("patient_id is required")
	}
	if req.Title == "" {
		return nil, errors.New("title is required")
	}
	if !validConsultationType(req.ConsultationType) {
		return nil, fmt.Errorf("unknown consultation type %q", req.ConsultationType)
	}
	if req.ConsultingSpecialist == "" {
		return nil, errors.New("consulting_specialist_id is required")
	}
	if !req.ScheduledTime.After(s.now()) {
		return nil, ErrScheduleInPast
	}
	urgency := req.UrgencyLevel
	if urgency == "" {
		urgency = UrgencyMedium
	}
	if !validUrgency(urgency) {
		return nil, fmt.Errorf("unknown urgency level %q", urgency)
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = 30
	}
	if duration < 5 || duration > 240 {
		return nil, errors.New("duration_minutes must be between 5 and 240")
	}

	c := &Consultation{
		ConsultationID:       "consult_" + uuid.NewString(),
		PatientID:            req.PatientID,
		StudyUID:             req.StudyUID,
		ConsultationType:     req.ConsultationType,
		Status:               StatusScheduled,
		ScheduledTime:        req.ScheduledTime.UTC(),
		DurationMinutes:      duration,
		RequestingDoctorID:   requestingDoctorID,
		ConsultingSpecialist: req.ConsultingSpecialist,
		HospitalID:           req.HospitalID,
		SpecialistHospitalID: req.SpecialistHospitalID,
		Title:                req.Title,
		Description:          req.Description,
		ClinicalQuestion:     req.ClinicalQuestion,
		UrgencyLevel:         urgency,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert consultation: %w", err)
	}

	// Requester and specialist are participants from the start.
	for _, p := range []struct{ userID, role string }{
		{requestingDoctorID, "requesting_doctor"},
		{req.ConsultingSpecialist, "consulting_specialist"},
	} {
		if err := s.repo.InsertParticipant(ctx, &Participant{
			ParticipantID:  "part_" + uuid.NewString(),
			ConsultationID: c.ConsultationID,
			UserID:         p.userID,
			Role:           p.role,
		}); err != nil {
			return nil, fmt.Errorf("add initial participant: %w", err)
		}
	}

	s.audit(ctx, requestingDoctorID, "consultation_scheduled", c, map[string]any{
		"type":    c.ConsultationType,
		"urgency": c.UrgencyLevel,
	})
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Service) List(ctx context.Context, f ListFilters, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListUpcoming(ctx context.Context, doctorID string, limit int) ([]*Consultation, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListUpcoming(ctx, doctorID, s.now().UTC(), limit)
}

// Start moves a scheduled consultation to in_progress and assigns a
// meeting room.
func (s *Service) Start(ctx context.Context, actorID, id string) (*Consultation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, StatusInProgress) {
		return nil, &TransitionError{From: c.Status, To: StatusInProgress}
	}

	now := s.now().UTC()
	c.Status = StatusInProgress
	c.StartedAt = &now
	c.MeetingRoomID = newMeetingRoomID()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("start consultation: %w", err)
	}

	s.audit(ctx, actorID, "consultation_started", c, map[string]any{
		"meeting_room_id": c.MeetingRoomID,
	})
	return c, nil
}

// Complete closes an in-progress consultation with its outcome.
func (s *Service) Complete(ctx context.Context, actorID, id string, req CompleteRequest) (*Consultation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, StatusCompleted) {
		return nil, &TransitionError{From: c.Status, To: StatusCompleted}
	}

	now := s.now().UTC()
	c.Status = StatusCompleted
	c.EndedAt = &now
	c.ConsultationNotes = req.ConsultationNotes
	c.Diagnosis = req.Diagnosis
	c.Recommendations = req.Recommendations
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("complete consultation: %w", err)
	}

	s.audit(ctx, actorID, "consultation_completed", c, nil)
	return c, nil
}

// Cancel works from scheduled or in_progress; MarkNoShow only from
// scheduled.
func (s *Service) Cancel(ctx context.Context, actorID, id, reason string) (*Consultation, error) {
	return s.close(ctx, actorID, id, StatusCancelled, reason)
}

func (s *Service) MarkNoShow(ctx context.Context, actorID, id string) (*Consultation, error) {
	return s.close(ctx, actorID, id, StatusNoShow, "")
}

func (s *Service) close(ctx context.Context, actorID, id, to, reason string) (*Consultation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, to) {
		return nil, &TransitionError{From: c.Status, To: to}
	}

	now := s.now().UTC()
	c.Status = to
	c.EndedAt = &now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("close consultation: %w", err)
	}

	details := map[string]any{"status": to}
	if reason != "" {
		details["reason"] = reason
	}
	s.audit(ctx, actorID, "consultation_"+to, c, details)
	return c, nil
}

func (s *Service) AddParticipant(ctx context.Context, actorID, consultationID string, req AddParticipantRequest) (*Participant, error) {
	if req.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	if _, err := s.Get(ctx, consultationID); err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetParticipant(ctx, consultationID, req.UserID); err == nil && existing != nil {
		return nil, ErrDuplicateParticipant
	}

	p := &Participant{
		ParticipantID:  "part_" + uuid.NewString(),
		ConsultationID: consultationID,
		UserID:         req.UserID,
		Username:       req.Username,
		Role:           req.Role,
		HospitalID:     req.HospitalID,
	}
	if err := s.repo.InsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	s.audit(ctx, actorID, "consultation_participant_added", &Consultation{ConsultationID: consultationID}, map[string]any{
		"user_id": req.UserID,
	})
	return p, nil
}

func (s *Service) Join(ctx context.Context, consultationID, userID string) (*Participant, error) {
	p, err := s.repo.GetParticipant(ctx, consultationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.JoinedAt = &now
	p.LeftAt = nil
	if err := s.repo.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("join consultation: %w", err)
	}
	return p, nil
}

func (s *Service) Leave(ctx context.Context, consultationID, userID string) (*Participant, error) {
	p, err := s.repo.GetParticipant(ctx, consultationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.LeftAt = &now
	if err := s.repo.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("leave consultation: %w", err)
	}
	return p, nil
}

func (s *Service) ListParticipants(ctx context.Context, consultationID string) ([]*Participant, error) {
	if _, err := s.Get(ctx, consultationID); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, consultationID)
}

func newMeetingRoomID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "room_" + uuid.NewString()
	}
	return "room_" + hex.EncodeToString(buf)
}

func (s *Service) audit(ctx context.Context, actorID, action string, c *Consultation, details map[string]any) {
	if s.auditor == nil {
		return
	}
	raw := []byte("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	entry := audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       "consultation",
		ResourceID:         c.ConsultationID,
		PatientID:          c.PatientID,
		StudyUID:           c.StudyUID,
		Details:            string(raw),
		ComplianceCategory: audit.CategoryPHIAccess,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
