package sharelink

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"

	"github.com/impilo-health/impilo/internal/domain/audit"
	"github.com/impilo-health/impilo/internal/platform/securestore"
)

const pbkdf2Iterations = 100000

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("link not found")
	ErrNotOwner     = errors.New("only the creator can revoke this link")
)

// RedeemError carries the recorded failure reason for a denied redemption.
type RedeemError struct {
	Reason string
}

func (e *RedeemError) Error() string {
	switch e.Reason {
	case FailInvalidToken:
		return "invalid or expired link"
	case FailLinkDeactivated:
		return "link has been deactivated"
	case FailLinkExpired:
		return "link has expired"
	case FailViewLimit:
		return "link has reached its view limit"
	case FailIPNotAllowed:
		return "access denied from this address"
	case FailPasswordRequired:
		return "password required"
	case FailInvalidPassword:
		return "invalid password"
	}
	return "access denied"
}

// Options bounds link issuance.
type Options struct {
	BaseURL      string
	MaxHours     int
	DefaultViews int
}

type Service struct {
	repo     Repository
	store    *securestore.Store
	auditor  audit.Recorder
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, store *securestore.Store, auditor audit.Recorder, notifier Notifier, opts Options, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.MaxHours <= 0 {
		opts.MaxHours = 168
	}
	return &Service{
		repo:     repo,
		store:    store,
		auditor:  auditor,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a new secure link. Each link gets its own random data key,
// stored encrypted under the master key. The share URL embeds the access
// token and is only returned here.
func (s *Service) Create(ctx context.Context, createdBy string, req CreateRequest) (*CreateResult, error) {
	switch req.ResourceType {
	case ResourceStudy, ResourceReport, ResourceImage:
	default:
		return nil, fmt.Errorf("invalid resource type %q", req.ResourceType)
	}
	if req.ResourceID == "" {
		return nil, errors.New("resource_id is required")
	}

	hours := req.ExpiresHours
	if hours <= 0 {
		hours = 24
	}
	if hours > s.opts.MaxHours {
		hours = s.opts.MaxHours
	}

	maxViews := req.MaxViews
	if maxViews == 0 {
		maxViews = s.opts.DefaultViews
	}
	if maxViews == 0 {
		maxViews = -1
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("generate link id: %w", err)
	}
	linkID := "link_" + hex.EncodeToString(idBytes)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	accessToken := base64.RawURLEncoding.EncodeToString(tokenBytes)

	dataKey := make([]byte, 32)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	encryptedKey, err := s.store.EncryptBytes(dataKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt data key: %w", err)
	}

	passwordHash := ""
	if req.Password != "" {
		passwordHash = hashLinkPassword(req.Password, accessToken)
	}

	allowedIPs := ""
	if len(req.AllowedIPs) > 0 {
		raw, err := json.Marshal(req.AllowedIPs)
		if err != nil {
			return nil, fmt.Errorf("encode allowed ips: %w", err)
		}
		allowedIPs = string(raw)
	}

	now := s.now()
	link := &Link{
		LinkID:           linkID,
		ResourceType:     req.ResourceType,
		ResourceID:       req.ResourceID,
		CreatedBy:        createdBy,
		RecipientEmail:   req.RecipientEmail,
		RecipientName:    req.RecipientName,
		AccessToken:      accessToken,
		EncryptionKey:    base64.StdEncoding.EncodeToString(encryptedKey),
		ExpiresAt:        now.Add(time.Duration(hours) * time.Hour),
		MaxViews:         maxViews,
		RequiresPassword: passwordHash != "",
		PasswordHash:     passwordHash,
		AllowedIPs:       allowedIPs,
		IsActive:         true,
		CreatedAt:        now,
	}
	if err := s.repo.Insert(ctx, link); err != nil {
		return nil, err
	}

	shareURL := s.opts.BaseURL + "/shared/" + accessToken

	if err := s.notifier.NotifyLinkCreated(ctx, link, shareURL, req.Message); err != nil {
		s.logger.Warn().Err(err).Str("link_id", linkID).Msg("share notification failed")
	}

	s.audit(ctx, createdBy, "link_created", linkID, map[string]any{
		"resource_type": req.ResourceType,
		"resource_id":   req.ResourceID,
		"expires_hours": hours,
	})

	s.logger.Info().Str("link_id", linkID).Str("resource_type", req.ResourceType).Msg("secure link created")
	return &CreateResult{Link: link, ShareURL: shareURL}, nil
}

// Redeem validates an access token and, if every check passes, counts a
// view and returns the link with its decrypted data key. Checks run in a
// fixed order and every attempt is recorded.
func (s *Service) Redeem(ctx context.Context, accessToken, password, ipAddress, userAgent string) (*RedeemResult, error) {
	now := s.now()
	deny := func(link *Link, reason string) error {
		linkID := ""
		if link != nil {
			linkID = link.LinkID
		}
		s.logAttempt(ctx, linkID, ipAddress, userAgent, false, reason, now)
		return &RedeemError{Reason: reason}
	}

	link, err := s.repo.GetByToken(ctx, accessToken)
	if err != nil {
		return nil, deny(nil, FailInvalidToken)
	}

	if !link.IsActive {
		return nil, deny(link, FailLinkDeactivated)
	}

	if link.ExpiresAt.Before(now) {
		if err := s.repo.Deactivate(ctx, link.LinkID); err != nil {
			s.logger.Error().Err(err).Str("link_id", link.LinkID).Msg("deactivate expired link failed")
		}
		return nil, deny(link, FailLinkExpired)
	}

	if link.MaxViews > 0 && link.CurrentViews >= link.MaxViews {
		return nil, deny(link, FailViewLimit)
	}

	if link.AllowedIPs != "" && ipAddress != "" {
		var allowed []string
		if err := json.Unmarshal([]byte(link.AllowedIPs), &allowed); err == nil && len(allowed) > 0 {
			ok := false
			for _, ip := range allowed {
				if ip == ipAddress {
					ok = true
					break
				}
			}
			if !ok {
				return nil, deny(link, FailIPNotAllowed)
			}
		}
	}

	if link.RequiresPassword {
		if password == "" {
			return nil, deny(link, FailPasswordRequired)
		}
		candidate := hashLinkPassword(password, link.AccessToken)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(link.PasswordHash)) != 1 {
			return nil, deny(link, FailInvalidPassword)
		}
	}

	if err := s.repo.RecordView(ctx, link.LinkID, now); err != nil {
		return nil, err
	}
	link.CurrentViews++
	link.LastAccessed = &now

	s.logAttempt(ctx, link.LinkID, ipAddress, userAgent, true, "", now)

	encryptedKey, err := base64.StdEncoding.DecodeString(link.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode data key: %w", err)
	}
	dataKey, err := s.store.DecryptBytes(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt data key: %w", err)
	}

	return &RedeemResult{
		Link:    link,
		DataKey: base64.StdEncoding.EncodeToString(dataKey),
	}, nil
}

// Revoke deactivates a link. Only the creator may revoke; admins bypass
// the ownership check.
func (s *Service) Revoke(ctx context.Context, linkID, userID string, isAdmin bool) error {
	link, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !isAdmin && link.CreatedBy != userID {
		return ErrNotOwner
	}
	if err := s.repo.Deactivate(ctx, linkID); err != nil {
		return err
	}
	s.audit(ctx, userID, "link_revoked", linkID, nil)
	s.logger.Info().Str("link_id", linkID).Str("revoked_by", userID).Msg("secure link revoked")
	return nil
}

func (s *Service) Get(ctx context.Context, linkID string) (*Link, error) {
	link, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s *Service) ListByCreator(ctx context.Context, createdBy string, activeOnly bool, limit, offset int) ([]*Link, int, error) {
	return s.repo.ListByCreator(ctx, createdBy, activeOnly, limit, offset)
}

func (s *Service) ListAttempts(ctx context.Context, linkID string, limit, offset int) ([]*AccessAttempt, int, error) {
	return s.repo.ListAttempts(ctx, linkID, limit, offset)
}

func (s *Service) GetStats(ctx context.Context, createdBy string) (*Stats, error) {
	return s.repo.Stats(ctx, createdBy, s.now().AddDate(0, 0, -7))
}

// CleanupExpired deactivates all active links past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("expired links deactivated")
	}
	return n, nil
}

func (s *Service) logAttempt(ctx context.Context, linkID, ipAddress, userAgent string, success bool, reason string, at time.Time) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		s.logger.Error().Err(err).Msg("generate access id failed")
		return
	}
	attempt := &AccessAttempt{
		AccessID:      "access_" + hex.EncodeToString(idBytes),
		LinkID:        linkID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
		AccessedAt:    at,
	}
	if err := s.repo.InsertAttempt(ctx, attempt); err != nil {
		s.logger.Error().Err(err).Str("link_id", linkID).Msg("record access attempt failed")
	}
}

func (s *Service) audit(ctx context.Context, actorID, action, linkID string, details map[string]any) {
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
		ResourceType:       "secure_link",
		ResourceID:         linkID,
		Details:            detailsJSON,
		ComplianceCategory: audit.CategoryDataSharing,
	})
}

// hashLinkPassword derives the stored password hash, salted with the
// link's own access token.
func hashLinkPassword(password, accessToken string) string {
	key := pbkdf2.Key([]byte(password), []byte(accessToken), pbkdf2Iterations, 32, sha256.New)
	return hex.EncodeToString(key)
}
