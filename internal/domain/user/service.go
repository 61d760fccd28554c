package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/impilo-health/impilo/internal/domain/audit"
	"github.com/impilo-health/impilo/internal/platform/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUsernameTaken      = errors.New("username already in use")
)

// hpcsaPattern matches HPCSA practitioner numbers (MP followed by 6-7 digits).
var hpcsaPattern = regexp.MustCompile(`^MP\d{6,7}$`)

type Service struct {
	repo       Repository
	auditor    audit.Recorder
	jwtSecret  []byte
	sessionTTL time.Duration
}

func NewService(repo Repository, auditor audit.Recorder, jwtSecret []byte, sessionTTL time.Duration) *Service {
	return &Service{repo: repo, auditor: auditor, jwtSecret: jwtSecret, sessionTTL: sessionTTL}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return nil, errors.New("username is required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if !validRole(req.Role) {
		return nil, fmt.Errorf("invalid role %q", req.Role)
	}
	if req.HPCSANumber != "" && !hpcsaPattern.MatchString(req.HPCSANumber) {
		return nil, errors.New("invalid HPCSA number: expected MP followed by 6-7 digits")
	}

	if existing, err := s.repo.GetByUsername(ctx, req.Username); err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		FullName:     req.FullName,
		Email:        req.Email,
		Role:         req.Role,
		HPCSANumber:  req.HPCSANumber,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}

	s.audit(ctx, u.ID, "user_created", u.ID, map[string]any{"role": u.Role})
	return u, nil
}

// Authenticate verifies credentials and issues a session token. Failed
// attempts are audited with the username only.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		// Burn a comparison so missing accounts take as long as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000"), []byte(req.Password))
		s.audit(ctx, "", "login_failed", req.Username, nil)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.audit(ctx, u.ID, "login_failed", req.Username, nil)
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.audit(ctx, u.ID, "login_rejected_disabled", req.Username, nil)
		return nil, ErrAccountDisabled
	}

	token, err := auth.IssueToken(s.jwtSecret, u.ID, u.Role, u.FullName, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.audit(ctx, u.ID, "login_success", req.Username, nil)
	return &LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
		User:      u,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, role, limit, offset)
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			return nil, fmt.Errorf("invalid role %q", *req.Role)
		}
		u.Role = *req.Role
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.audit(ctx, auth.UserIDFromContext(ctx), "user_updated", u.ID, nil)
	return u, nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}
	s.audit(ctx, id, "password_changed", id, nil)
	return nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}
	s.audit(ctx, auth.UserIDFromContext(ctx), "user_deactivated", id, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, actorID, action, resourceID string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	detailsJSON := "{}"
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			detailsJSON = string(raw)
		}
	}
	_ = s.auditor.Record(ctx, audit.Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       "user",
		ResourceID:         resourceID,
		Details:            detailsJSON,
		ComplianceCategory: audit.CategoryAuth,
	})
}
