package authorization

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

var (
	ErrDoctorNotFound    = errors.New("doctor not found or inactive")
	ErrDuplicateActive   = errors.New("active authorization already exists for this doctor/patient/study combination")
	ErrAuthNotFound      = errors.New("authorization not found")
	ErrDuplicateHPCSA    = errors.New("HPCSA number already registered")
	ErrInvalidHPCSA      = errors.New("invalid HPCSA number: expected MP followed by 6-7 digits")
	ErrExpiryInPast      = errors.New("new expiry must be in the future")
	ErrAlreadyRevoked    = errors.New("authorization is already revoked")
	ErrInvalidAccessTier = errors.New("invalid access level")
)

type Service struct {
	doctors DoctorRepository
	auths   AuthRepository
	auditor audit.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(doctors DoctorRepository, auths AuthRepository, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		doctors: doctors,
		auths:   auths,
		auditor: auditor,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterDoctor creates a referring doctor after validating the HPCSA
// registration number.
func (s *Service) RegisterDoctor(ctx context.Context, d ReferringDoctor) (*ReferringDoctor, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return nil, errors.New("name is required")
	}
	if !HPCSAPattern.MatchString(d.HPCSANumber) {
		return nil, ErrInvalidHPCSA
	}
	if existing, err := s.doctors.GetByHPCSA(ctx, d.HPCSANumber); err == nil && existing != nil {
		return nil, ErrDuplicateHPCSA
	}
	switch d.AccessLevel {
	case "":
		d.AccessLevel = DoctorAccessView
	case DoctorAccessView, DoctorAccessFull, DoctorAccessAdmin:
	default:
		return nil, ErrInvalidAccessTier
	}

	now := s.now()
	d.ID = uuid.NewString()
	d.IsActive = true
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := s.doctors.Insert(ctx, &d); err != nil {
		return nil, err
	}

	s.audit(ctx, "", "doctor_registered", "referring_doctor", d.ID, "", "", map[string]any{
		"hpcsa_number": d.HPCSANumber,
	})
	return &d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*ReferringDoctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, activeOnly bool, limit, offset int) ([]*ReferringDoctor, int, error) {
	return s.doctors.List(ctx, activeOnly, limit, offset)
}

func (s *Service) UpdateDoctor(ctx context.Context, id string, update ReferringDoctor) (*ReferringDoctor, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Name != "" {
		d.Name = update.Name
	}
	if update.HPCSANumber != "" && update.HPCSANumber != d.HPCSANumber {
		if !HPCSAPattern.MatchString(update.HPCSANumber) {
			return nil, ErrInvalidHPCSA
		}
		if existing, err := s.doctors.GetByHPCSA(ctx, update.HPCSANumber); err == nil && existing != nil && existing.ID != id {
			return nil, ErrDuplicateHPCSA
		}
		d.HPCSANumber = update.HPCSANumber
	}
	if update.Email != "" {
		d.Email = update.Email
	}
	if update.Phone != "" {
		d.Phone = update.Phone
	}
	if update.PracticeName != "" {
		d.PracticeName = update.PracticeName
	}
	if update.Specialty != "" {
		d.Specialty = update.Specialty
	}
	if update.AccessLevel != "" {
		switch update.AccessLevel {
		case DoctorAccessView, DoctorAccessFull, DoctorAccessAdmin:
			d.AccessLevel = update.AccessLevel
		default:
			return nil, ErrInvalidAccessTier
		}
	}
	d.UpdatedAt = s.now()
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeactivateDoctor(ctx context.Context, id string) error {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return err
	}
	d.IsActive = false
	d.UpdatedAt = s.now()
	if err := s.doctors.Update(ctx, d); err != nil {
		return err
	}
	s.audit(ctx, "", "doctor_deactivated", "referring_doctor", id, "", "", nil)
	return nil
}

// Grant creates a patient authorization. Duplicate active grants for the
// same doctor/patient/study are rejected.
func (s *Service) Grant(ctx context.Context, grantedBy string, req GrantRequest) (*Authorization, error) {
	if req.PatientID == "" {
		return nil, errors.New("patient_id is required")
	}
	if req.AccessLevel == "" {
		req.AccessLevel = AccessViewOnly
	}
	if !ValidAccessLevel(req.AccessLevel) {
		return nil, fmt.Errorf("invalid access level %q", req.AccessLevel)
	}

	doctor, err := s.doctors.GetByID(ctx, req.DoctorID)
	if err != nil || !doctor.IsActive {
		return nil, ErrDoctorNotFound
	}

	now := s.now()
	if req.ExpiresAt != nil && req.ExpiresAt.Before(now) {
		return nil, ErrExpiryInPast
	}

	if existing, err := s.auths.GetActive(ctx, req.DoctorID, req.PatientID, req.StudyInstanceUID, now); err == nil && existing != nil {
		return nil, ErrDuplicateActive
	}

	a := &Authorization{
		ID:               uuid.NewString(),
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		StudyInstanceUID: req.StudyInstanceUID,
		AccessLevel:      req.AccessLevel,
		GrantedBy:        grantedBy,
		GrantedAt:        now,
		ExpiresAt:        req.ExpiresAt,
		IsActive:         true,
		Notes:            req.Notes,
		AccessReason:     req.AccessReason,
		CreatedAt:        now,
	}
	if err := s.auths.Insert(ctx, a); err != nil {
		return nil, err
	}

	s.audit(ctx, grantedBy, "grant_access", "patient_authorization", a.ID, req.PatientID, req.StudyInstanceUID, map[string]any{
		"doctor_id":    req.DoctorID,
		"hpcsa_number": doctor.HPCSANumber,
		"access_level": req.AccessLevel,
	})
	return a, nil
}

// BulkGrant creates many authorizations, collecting per-item errors
// instead of failing the batch.
func (s *Service) BulkGrant(ctx context.Context, grantedBy string, reqs []GrantRequest) (created []*Authorization, failures []error) {
	for _, req := range reqs {
		a, err := s.Grant(ctx, grantedBy, req)
		if err != nil {
			failures = append(failures, fmt.Errorf("doctor %s patient %s: %w", req.DoctorID, req.PatientID, err))
			continue
		}
		created = append(created, a)
	}
	return created, failures
}

// CheckAccess decides whether a doctor may access a patient or study.
// Admin-tier doctors bypass per-patient grants. A study-scoped check
// falls back to a patient-wide grant when no study grant exists.
func (s *Service) CheckAccess(ctx context.Context, doctorID, patientID, studyUID string) (*AccessDecision, error) {
	doctor, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil || !doctor.IsActive {
		return &AccessDecision{HasAccess: false, AccessLevel: "none"}, nil
	}

	if doctor.AccessLevel == DoctorAccessAdmin {
		return &AccessDecision{HasAccess: true, AccessLevel: DoctorAccessAdmin}, nil
	}

	now := s.now()
	if a, err := s.auths.GetActive(ctx, doctorID, patientID, studyUID, now); err == nil && a != nil {
		s.recordUse(ctx, a)
		return &AccessDecision{HasAccess: true, AccessLevel: a.AccessLevel, Authorization: a}, nil
	}

	if studyUID != "" {
		if a, err := s.auths.GetActive(ctx, doctorID, patientID, "", now); err == nil && a != nil {
			s.recordUse(ctx, a)
			return &AccessDecision{HasAccess: true, AccessLevel: a.AccessLevel, Authorization: a}, nil
		}
	}

	return &AccessDecision{HasAccess: false, AccessLevel: "none"}, nil
}

func (s *Service) recordUse(ctx context.Context, a *Authorization) {
	if err := s.auths.RecordAccess(ctx, a.ID, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("authorization_id", a.ID).Msg("record access failed")
	}
}

func (s *Service) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	a, err := s.auths.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	return s.auths.ListByDoctor(ctx, doctorID, activeOnly, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	return s.auths.ListByPatient(ctx, patientID, activeOnly, limit, offset)
}

// UpdateAuthorization changes the access level or notes on an active
// authorization. Revoked authorizations cannot be edited.
func (s *Service) UpdateAuthorization(ctx context.Context, id, updatedBy string, req UpdateAuthRequest) (*Authorization, error) {
	a, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrAlreadyRevoked
	}
	if req.AccessLevel != nil {
		if !ValidAccessLevel(*req.AccessLevel) {
			return nil, ErrInvalidAccessTier
		}
		a.AccessLevel = *req.AccessLevel
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	if req.AccessReason != nil {
		a.AccessReason = *req.AccessReason
	}
	now := s.now()
	a.UpdatedAt = &now
	if err := s.auths.Update(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, updatedBy, "update_access", "patient_authorization", a.ID, a.PatientID, a.StudyInstanceUID, map[string]any{
		"access_level": a.AccessLevel,
	})
	return a, nil
}

// Extend pushes an active authorization's expiry forward.
func (s *Service) Extend(ctx context.Context, id string, newExpiry time.Time, extendedBy string) (*Authorization, error) {
	a, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if newExpiry.Before(now) {
		return nil, ErrExpiryInPast
	}
	a.ExpiresAt = &newExpiry
	a.IsActive = true
	a.UpdatedAt = &now
	if err := s.auths.Update(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, extendedBy, "extend_access", "patient_authorization", a.ID, a.PatientID, a.StudyInstanceUID, map[string]any{
		"new_expiry": newExpiry.Format(time.RFC3339),
	})
	return a, nil
}

// Revoke deactivates an authorization and records who and why.
func (s *Service) Revoke(ctx context.Context, id, revokedBy, reason string) (*Authorization, error) {
	a, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrAlreadyRevoked
	}
	now := s.now()
	a.IsActive = false
	a.RevokedAt = &now
	a.RevokedBy = revokedBy
	a.RevokedReason = reason
	a.UpdatedAt = &now
	if err := s.auths.Update(ctx, a); err != nil {
		return nil, err
	}
	s.audit(ctx, revokedBy, "revoke_access", "patient_authorization", a.ID, a.PatientID, a.StudyInstanceUID, map[string]any{
		"reason": reason,
	})
	return a, nil
}

// ListExpiring returns active authorizations expiring within daysAhead days.
func (s *Service) ListExpiring(ctx context.Context, daysAhead int) ([]*Authorization, error) {
	if daysAhead <= 0 {
		daysAhead = 7
	}
	now := s.now()
	return s.auths.ListExpiring(ctx, now, now.AddDate(0, 0, daysAhead))
}

// CleanupExpired deactivates authorizations past their expiry.
func (s *Service) CleanupExpired(ctx context.Context, cleanedBy string) (int, error) {
	now := s.now()
	expired, err := s.auths.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range expired {
		a.IsActive = false
		a.UpdatedAt = &now
		if err := s.auths.Update(ctx, a); err != nil {
			s.logger.Error().Err(err).Str("authorization_id", a.ID).Msg("expire authorization failed")
			continue
		}
		count++
		s.audit(ctx, cleanedBy, "expire_authorization", "patient_authorization", a.ID, a.PatientID, a.StudyInstanceUID, nil)
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Msg("expired authorizations cleaned up")
	}
	return count, nil
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	now := s.now()
	return s.auths.Stats(ctx, now, now.AddDate(0, 0, 7))
}

// audit is best effort: authorization operations never fail because the
// audit write did.
func (s *Service) audit(ctx context.Context, actorID, action, resourceType, resourceID, patientID, studyUID string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	detailsJSON := "{}"
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			detailsJSON = string(raw)
		}
	}
	err := s.auditor.Record(ctx, audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       resourceType,
		ResourceID:         resourceID,
		PatientID:          patientID,
		StudyUID:           studyUID,
		Details:            detailsJSON,
		ComplianceCategory: audit.CategoryPHIAccess,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}
