package facegate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/domain/audit"
)

const (
	defaultMaxAttemptsPerHour = 10
	defaultMaxDistance        = 0.4
	defaultThreshold          = 0.6
)

var (
	ErrNotEnrolled      = errors.New("no active face profile for user")
	ErrDisabled         = errors.New("face authentication is disabled")
	ErrInvalidEncoding  = errors.New("face encoding must be a 128-dimensional vector")
	ErrInvalidThreshold = errors.New("confidence threshold must be between 0 and 1")
)

// RateLimitedError is returned from Verify when a user has exceeded the
// hourly attempt budget. The limit is included so callers can surface it.
type RateLimitedError struct {
	Limit int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many face authentication attempts, limit is %d per hour", e.Limit)
}

type EnrollRequest struct {
	UserID              string    `json:"user_id"`
	Encoding            []float64 `json:"encoding"`
	ImageData           string    `json:"image_data,omitempty"`
	ConfidenceThreshold float64   `json:"confidence_threshold,omitempty"`
}

type VerifyRequest struct {
	UserID    string    `json:"user_id"`
	Encoding  []float64 `json:"encoding"`
	IPAddress string    `json:"-"`
	UserAgent string    `json:"-"`
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
		logger:  logger.With().Str("component", "facegate").Logger(),
		now:     time.Now,
	}
}

// Enroll stores a face profile for the user. Re-enrolling replaces the
// existing encoding but keeps the usage counter via the upsert.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*Profile, error) {
	if req.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	if len(req.Encoding) != EncodingDims {
		return nil, ErrInvalidEncoding
	}
	threshold := req.ConfidenceThreshold
	if threshold == 0 {
		threshold = s.floatSetting(ctx, SettingDefaultThreshold, defaultThreshold)
	}
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}

	var imageHash string
	if req.ImageData != "" {
		raw, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		sum := sha256.Sum256(raw)
		imageHash = hex.EncodeToString(sum[:])
	}

	p := &Profile{
		UserID:              req.UserID,
		FaceEncoding:        EncodeVector(req.Encoding),
		FaceImageHash:       imageHash,
		EnrolledAt:          s.now().UTC(),
		IsActive:            true,
		ConfidenceThreshold: threshold,
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("store face profile: %w", err)
	}

	s.audit(ctx, req.UserID, "face_enroll", map[string]any{
		"confidence_threshold": threshold,
	})
	s.logger.Info().Str("user_id", req.UserID).Msg("face profile enrolled")
	return p, nil
}

// Verify compares the presented encoding against the stored profile.
// Every attempt is recorded, including rate-limited and failed ones.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if enabled := s.settingOrDefault(ctx, SettingEnabled, "true"); enabled == "false" {
		return nil, ErrDisabled
	}
	if len(req.Encoding) != EncodingDims {
		return nil, ErrInvalidEncoding
	}

	now := s.now().UTC()
	maxAttempts := int(s.floatSetting(ctx, SettingMaxAttemptsPerHour, defaultMaxAttemptsPerHour))
	recent, err := s.repo.CountRecentAttempts(ctx, req.UserID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count recent attempts: %w", err)
	}
	if recent >= maxAttempts {
		s.recordAttempt(ctx, req, false, 0, "rate_limited", now)
		return nil, &RateLimitedError{Limit: maxAttempts}
	}

	profile, err := s.repo.GetProfile(ctx, req.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		s.recordAttempt(ctx, req, false, 0, "not_enrolled", now)
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("load face profile: %w", err)
	}
	if !profile.IsActive {
		s.recordAttempt(ctx, req, false, 0, "profile_inactive", now)
		return nil, ErrNotEnrolled
	}

	stored, err := DecodeVector(profile.FaceEncoding)
	if err != nil {
		return nil, fmt.Errorf("decode stored encoding: %w", err)
	}
	dist, err := Distance(stored, req.Encoding)
	if err != nil {
		return nil, err
	}
	confidence := 1 - dist
	maxDistance := s.floatSetting(ctx, SettingMaxDistance, defaultMaxDistance)

	result := &VerifyResult{Confidence: confidence, Distance: dist}
	switch {
	case dist > maxDistance:
		s.recordAttempt(ctx, req, false, confidence, "distance_exceeded", now)
	case confidence < profile.ConfidenceThreshold:
		s.recordAttempt(ctx, req, false, confidence, "below_threshold", now)
	default:
		result.Verified = true
		s.recordAttempt(ctx, req, true, confidence, "", now)
		if err := s.repo.RecordUse(ctx, req.UserID, now); err != nil {
			s.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("record face profile use")
		}
		s.audit(ctx, req.UserID, "face_verify_success", map[string]any{
			"confidence": confidence,
		})
	}
	return result, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	return p, err
}

// Unenroll deactivates the user's face profile. Attempt history is kept.
func (s *Service) Unenroll(ctx context.Context, userID, actorID string) error {
	if err := s.repo.DeactivateProfile(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotEnrolled
		}
		return err
	}
	s.audit(ctx, actorID, "face_unenroll", map[string]any{"target_user": userID})
	return nil
}

func (s *Service) ListAttempts(ctx context.Context, userID string, limit, offset int) ([]*Attempt, int, error) {
	return s.repo.ListAttempts(ctx, userID, limit, offset)
}

// Settings returns the effective settings, with defaults filled in for
// keys that have never been written.
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	stored, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	defaults := map[string]string{
		SettingMaxAttemptsPerHour: strconv.Itoa(defaultMaxAttemptsPerHour),
		SettingMaxDistance:        strconv.FormatFloat(defaultMaxDistance, 'f', -1, 64),
		SettingDefaultThreshold:   strconv.FormatFloat(defaultThreshold, 'f', -1, 64),
		SettingEnabled:            "true",
	}
	for k, v := range defaults {
		if _, ok := stored[k]; !ok {
			stored[k] = v
		}
	}
	return stored, nil
}

func (s *Service) UpdateSetting(ctx context.Context, actorID, key, value string) error {
	switch key {
	case SettingMaxAttemptsPerHour:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
	case SettingMaxDistance, SettingDefaultThreshold:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("%s must be a number between 0 and 1", key)
		}
	case SettingEnabled:
		if value != "true" && value != "false" {
			return fmt.Errorf("%s must be true or false", key)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := s.repo.SetSetting(ctx, key, value, s.now().UTC()); err != nil {
		return err
	}
	s.audit(ctx, actorID, "face_setting_update", map[string]any{"key": key, "value": value})
	return nil
}

func (s *Service) recordAttempt(ctx context.Context, req VerifyRequest, success bool, confidence float64, reason string, at time.Time) {
	a := &Attempt{
		AttemptID:       "attempt_" + uuid.NewString(),
		UserID:          req.UserID,
		Success:         success,
		ConfidenceScore: confidence,
		IPAddress:       req.IPAddress,
		UserAgent:       req.UserAgent,
		FailureReason:   reason,
		AttemptedAt:     at,
	}
	if err := s.repo.InsertAttempt(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("record face auth attempt")
	}
	if !success {
		s.audit(ctx, req.UserID, "face_verify_failed", map[string]any{"reason": reason})
	}
}

func (s *Service) settingOrDefault(ctx context.Context, key, fallback string) string {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return fallback
	}
	if v, ok := settings[key]; ok {
		return v
	}
	return fallback
}

func (s *Service) floatSetting(ctx context.Context, key string, fallback float64) float64 {
	v := s.settingOrDefault(ctx, key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (s *Service) audit(ctx context.Context, actorID, action string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	entry := audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       "face_profile",
		Details:            string(raw),
		ComplianceCategory: audit.CategoryAuth,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
