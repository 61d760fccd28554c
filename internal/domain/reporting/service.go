package reporting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrLocked         = errors.New("authorized reports cannot be modified")
)

// TransitionError reports an attempted invalid workflow move.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move report from %s to %s", e.From, e.To)
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
		logger:  logger.With().Str("component", "reporting").Logger(),
		now:     time.Now,
	}
}

func (s *Service) Create(ctx context.Context, radiologistID string, req CreateRequest) (*Report, error) {
	if req.StudyInstanceUID == "" || req.PatientID == "" {
		return nil, errors.New("study_instance_uid and patient_id are required")
	}

	now := s.now().UTC()
	r := &Report{
		ID:               uuid.NewString(),
		StudyInstanceUID: req.StudyInstanceUID,
		PatientID:        req.PatientID,
		RadiologistID:    radiologistID,
		Status:           StatusDraft,
		Findings:         req.Findings,
		Impression:       req.Impression,
		Recommendations:  req.Recommendations,
		ClinicalData:     "{}",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	s.audit(ctx, radiologistID, "report_created", r, nil)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Report, error) {
	r, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	return r, err
}

func (s *Service) Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Report, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}

func (s *Service) Update(ctx context.Context, actorID, id string, req UpdateRequest) (*Report, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusAuthorized {
		return nil, ErrLocked
	}
	if req.Findings != nil {
		r.Findings = *req.Findings
	}
	if req.Impression != nil {
		r.Impression = *req.Impression
	}
	if req.Recommendations != nil {
		r.Recommendations = *req.Recommendations
	}
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	s.audit(ctx, actorID, "report_updated", r, nil)
	return r, nil
}

// Transition moves a report through the workflow. Typists moving a
// report to transcribed are recorded on it; authorization stamps the
// authorized_at time.
func (s *Service) Transition(ctx context.Context, actorID, actorRole, id, to string) (*Report, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, to) {
		return nil, &TransitionError{From: r.Status, To: to}
	}

	from := r.Status
	r.Status = to
	r.UpdatedAt = s.now().UTC()
	switch to {
	case StatusTranscribed:
		if actorRole == "typist" {
			r.TypistID = actorID
		}
	case StatusAuthorized:
		now := s.now().UTC()
		r.AuthorizedAt = &now
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("transition report: %w", err)
	}

	s.audit(ctx, actorID, "report_status_changed", r, map[string]any{
		"from": from,
		"to":   to,
	})
	return r, nil
}

// SetClinicalData validates the measurements, and on success stores the
// normalized document on the report. Validation errors are returned in
// the result without persisting.
func (s *Service) SetClinicalData(ctx context.Context, actorID, id string, data ClinicalData) (*ValidationResult, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusAuthorized {
		return nil, ErrLocked
	}

	result := ValidateClinicalData(data)
	if !result.Valid {
		return &result, nil
	}

	doc, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal clinical data: %w", err)
	}
	r.ClinicalData = string(doc)
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("store clinical data: %w", err)
	}

	s.audit(ctx, actorID, "report_clinical_data_set", r, map[string]any{
		"warnings": len(result.Warnings),
	})
	return &result, nil
}

func (s *Service) audit(ctx context.Context, actorID, action string, r *Report, details map[string]any) {
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
		ResourceType:       "report",
		ResourceID:         r.ID,
		PatientID:          r.PatientID,
		StudyUID:           r.StudyInstanceUID,
		Details:            string(raw),
		ComplianceCategory: audit.CategoryPHIAccess,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
