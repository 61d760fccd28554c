package imaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

var (
	ErrStudyNotFound = errors.New("imaging study not found")
	ErrDuplicateUID  = errors.New("a study with this study instance UID already exists")
)

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
		logger:  logger.With().Str("component", "imaging").Logger(),
		now:     time.Now,
	}
}

func (s *Service) Create(ctx context.Context, actorID string, req CreateStudyRequest) (*Study, error) {
	if req.StudyInstanceUID == "" {
		return nil, errors.New("study_instance_uid is required")
	}
	if req.PatientID == "" {
		return nil, errors.New("patient_id is required")
	}
	if existing, err := s.repo.GetByStudyUID(ctx, req.StudyInstanceUID); err == nil && existing != nil {
		return nil, ErrDuplicateUID
	}

	now := s.now().UTC()
	study := &Study{
		ID:                 uuid.NewString(),
		StudyInstanceUID:   req.StudyInstanceUID,
		PatientID:          req.PatientID,
		PatientName:        req.PatientName,
		Modality:           req.Modality,
		StudyDate:          req.StudyDate,
		Description:        req.Description,
		InstitutionName:    req.InstitutionName,
		ReferringPhysician: req.ReferringPhysician,
		InstanceCount:      req.InstanceCount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, study); err != nil {
		return nil, fmt.Errorf("insert study: %w", err)
	}

	s.audit(ctx, actorID, "study_created", study)
	return study, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Study, error) {
	study, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	return study, err
}

func (s *Service) GetByStudyUID(ctx context.Context, uid string) (*Study, error) {
	study, err := s.repo.GetByStudyUID(ctx, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	return study, err
}

func (s *Service) Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Study, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}

func (s *Service) Update(ctx context.Context, actorID, id string, req CreateStudyRequest) (*Study, error) {
	study, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PatientID != "" {
		study.PatientID = req.PatientID
	}
	if req.PatientName != "" {
		study.PatientName = req.PatientName
	}
	if req.Modality != "" {
		study.Modality = req.Modality
	}
	if req.StudyDate != "" {
		study.StudyDate = req.StudyDate
	}
	if req.Description != "" {
		study.Description = req.Description
	}
	if req.InstitutionName != "" {
		study.InstitutionName = req.InstitutionName
	}
	if req.ReferringPhysician != "" {
		study.ReferringPhysician = req.ReferringPhysician
	}
	if req.InstanceCount > 0 {
		study.InstanceCount = req.InstanceCount
	}
	study.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, study); err != nil {
		return nil, fmt.Errorf("update study: %w", err)
	}
	s.audit(ctx, actorID, "study_updated", study)
	return study, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	study, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStudyNotFound
		}
		return err
	}
	s.audit(ctx, actorID, "study_deleted", study)
	return nil
}

// ImportDICOM extracts study metadata from one DICOM object and upserts
// the matching study. Repeat imports of the same study bump the
// instance count.
func (s *Service) ImportDICOM(ctx context.Context, actorID string, r io.Reader, size int64) (*ImportResult, error) {
	h, err := parseHeader(r, size)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	existing, err := s.repo.GetByStudyUID(ctx, h.StudyInstanceUID)
	if err == nil && existing != nil {
		existing.InstanceCount++
		if existing.PatientName == "" {
			existing.PatientName = h.PatientName
		}
		if existing.Description == "" {
			existing.Description = h.Description
		}
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update study on import: %w", err)
		}
		s.audit(ctx, actorID, "study_instance_imported", existing)
		return &ImportResult{Study: existing, Created: false}, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	study := &Study{
		ID:                 uuid.NewString(),
		StudyInstanceUID:   h.StudyInstanceUID,
		PatientID:          h.PatientID,
		PatientName:        h.PatientName,
		Modality:           h.Modality,
		StudyDate:          h.StudyDate,
		Description:        h.Description,
		InstitutionName:    h.InstitutionName,
		ReferringPhysician: h.ReferringPhysician,
		InstanceCount:      1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, study); err != nil {
		return nil, fmt.Errorf("insert study on import: %w", err)
	}
	s.audit(ctx, actorID, "study_imported", study)
	return &ImportResult{Study: study, Created: true}, nil
}

func (s *Service) audit(ctx context.Context, actorID, action string, study *Study) {
	if s.auditor == nil {
		return
	}
	details, err := json.Marshal(map[string]any{"modality": study.Modality})
	if err != nil {
		details = []byte("{}")
	}
	entry := audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       "imaging_study",
		ResourceID:         study.ID,
		PatientID:          study.PatientID,
		StudyUID:           study.StudyInstanceUID,
		Details:            string(details),
		ComplianceCategory: audit.CategoryPHIAccess,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
