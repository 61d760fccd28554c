package sharelink

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/platform/securestore"
)

type mockRepo struct {
	links    map[string]*Link
	attempts []*AccessAttempt
}

func newMockRepo() *mockRepo {
	return &mockRepo{links: make(map[string]*Link)}
}

func (m *mockRepo) Insert(ctx context.Context, l *Link) error {
	m.links[l.LinkID] = l
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, linkID string) (*Link, error) {
	if l, ok := m.links[linkID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRepo) GetByToken(ctx context.Context, accessToken string) (*Link, error) {
	for _, l := range m.links {
		if l.AccessToken == accessToken {
			cp := *l
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRepo) ListByCreator(ctx context.Context, createdBy string, activeOnly bool, limit, offset int) ([]*Link, int, error) {
	var out []*Link
	for _, l := range m.links {
		if createdBy != "" && l.CreatedBy != createdBy {
			continue
		}
		if activeOnly && !l.IsActive {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (m *mockRepo) RecordView(ctx context.Context, linkID string, at time.Time) error {
	l, ok := m.links[linkID]
	if !ok {
		return sql.ErrNoRows
	}
	l.CurrentViews++
	l.LastAccessed = &at
	return nil
}

func (m *mockRepo) Deactivate(ctx context.Context, linkID string) error {
	l, ok := m.links[linkID]
	if !ok {
		return sql.ErrNoRows
	}
	l.IsActive = false
	return nil
}

func (m *mockRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for _, l := range m.links {
		if l.IsActive && l.ExpiresAt.Before(now) {
			l.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) InsertAttempt(ctx context.Context, a *AccessAttempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockRepo) ListAttempts(ctx context.Context, linkID string, limit, offset int) ([]*AccessAttempt, int, error) {
	var out []*AccessAttempt
	for _, a := range m.attempts {
		if a.LinkID == linkID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) Stats(ctx context.Context, createdBy string, since time.Time) (*Stats, error) {
	return &Stats{TotalLinks: len(m.links)}, nil
}

func (m *mockRepo) lastAttempt() *AccessAttempt {
	if len(m.attempts) == 0 {
		return nil
	}
	return m.attempts[len(m.attempts)-1]
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	key, err := securestore.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store, err := securestore.New(key)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewService(repo, store, nil, NopNotifier{}, Options{
		BaseURL:  "https://pacs.example.co.za",
		MaxHours: 168,
	}, zerolog.Nop())
}

func TestCreateLink(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	result, err := svc.Create(context.Background(), "user-1", CreateRequest{
		ResourceType: ResourceStudy,
		ResourceID:   "1.2.840.113619.2.55.3",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	link := result.Link
	if !strings.HasPrefix(link.LinkID, "link_") || len(link.LinkID) != len("link_")+32 {
		t.Errorf("link id format: %q", link.LinkID)
	}
	if link.AccessToken == "" {
		t.Error("expected access token")
	}
	if link.EncryptionKey == "" {
		t.Error("expected per-link encryption key")
	}
	if link.MaxViews != -1 {
		t.Errorf("default max views = %d, want -1 (unlimited)", link.MaxViews)
	}
	if link.RequiresPassword {
		t.Error("no password given, should not require one")
	}
	if !strings.HasSuffix(result.ShareURL, "/shared/"+link.AccessToken) {
		t.Errorf("share URL %q must embed the token", result.ShareURL)
	}
	// Default expiry is 24h.
	d := time.Until(link.ExpiresAt)
	if d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("default expiry %v, want ~24h", d)
	}
}

func TestCreateLinkClampsExpiry(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	result, err := svc.Create(context.Background(), "user-1", CreateRequest{
		ResourceType: ResourceStudy,
		ResourceID:   "uid",
		ExpiresHours: 10000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d := time.Until(result.Link.ExpiresAt); d > 169*time.Hour {
		t.Errorf("expiry %v exceeds 168h cap", d)
	}
}

func TestCreateLinkRejectsBadResource(t *testing.T) {
	svc := newTestService(t, newMockRepo())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u", CreateRequest{ResourceType: "database", ResourceID: "x"}); err == nil {
		t.Error("expected error for invalid resource type")
	}
	if _, err := svc.Create(ctx, "u", CreateRequest{ResourceType: ResourceStudy}); err == nil {
		t.Error("expected error for missing resource id")
	}
}

func TestRedeemSuccess(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "uid"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.Redeem(ctx, created.Link.AccessToken, "", "10.0.0.5", "test-agent")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if result.Link.CurrentViews != 1 {
		t.Errorf("views = %d, want 1", result.Link.CurrentViews)
	}
	if result.DataKey == "" {
		t.Error("expected decrypted data key")
	}

	a := repo.lastAttempt()
	if a == nil || !a.Success {
		t.Fatal("expected a successful attempt record")
	}
	if a.IPAddress != "10.0.0.5" {
		t.Errorf("attempt ip = %q", a.IPAddress)
	}
}

func TestRedeemInvalidToken(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)

	_, err := svc.Redeem(context.Background(), "no-such-token", "", "1.2.3.4", "ua")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailInvalidToken {
		t.Fatalf("expected invalid_token, got %v", err)
	}
	if a := repo.lastAttempt(); a == nil || a.Success || a.FailureReason != FailInvalidToken {
		t.Error("expected a failed attempt record with invalid_token")
	}
}

func TestRedeemDeactivatedLink(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "uid"})
	if err := svc.Revoke(ctx, created.Link.LinkID, "user-1", false); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err := svc.Redeem(ctx, created.Link.AccessToken, "", "", "")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailLinkDeactivated {
		t.Fatalf("expected link_deactivated, got %v", err)
	}
}

func TestRedeemExpiredLinkAutoDeactivates(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "uid"})

	// Move the clock past expiry.
	svc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	_, err := svc.Redeem(ctx, created.Link.AccessToken, "", "", "")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailLinkExpired {
		t.Fatalf("expected link_expired, got %v", err)
	}
	if repo.links[created.Link.LinkID].IsActive {
		t.Error("expired link must be deactivated on redemption")
	}
}

func TestRedeemViewLimit(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{
		ResourceType: ResourceStudy, ResourceID: "uid", MaxViews: 1,
	})

	if _, err := svc.Redeem(ctx, created.Link.AccessToken, "", "", ""); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	_, err := svc.Redeem(ctx, created.Link.AccessToken, "", "", "")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailViewLimit {
		t.Fatalf("expected view_limit_exceeded, got %v", err)
	}
}

func TestRedeemIPAllowlist(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{
		ResourceType: ResourceStudy, ResourceID: "uid",
		AllowedIPs: []string{"10.0.0.1"},
	})

	_, err := svc.Redeem(ctx, created.Link.AccessToken, "", "192.168.1.9", "")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailIPNotAllowed {
		t.Fatalf("expected ip_not_allowed, got %v", err)
	}

	if _, err := svc.Redeem(ctx, created.Link.AccessToken, "", "10.0.0.1", ""); err != nil {
		t.Errorf("allowed ip rejected: %v", err)
	}
}

func TestRedeemPassword(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{
		ResourceType: ResourceStudy, ResourceID: "uid", Password: "s3cret",
	})
	if !created.Link.RequiresPassword {
		t.Fatal("link should require a password")
	}
	if created.Link.PasswordHash == "s3cret" {
		t.Fatal("password must be stored hashed")
	}

	_, err := svc.Redeem(ctx, created.Link.AccessToken, "", "", "")
	var redeemErr *RedeemError
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailPasswordRequired {
		t.Fatalf("expected password_required, got %v", err)
	}

	_, err = svc.Redeem(ctx, created.Link.AccessToken, "wrong", "", "")
	if !errors.As(err, &redeemErr) || redeemErr.Reason != FailInvalidPassword {
		t.Fatalf("expected invalid_password, got %v", err)
	}

	if _, err := svc.Redeem(ctx, created.Link.AccessToken, "s3cret", "", ""); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
}

func TestRevokeOwnership(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "uid"})

	if err := svc.Revoke(ctx, created.Link.LinkID, "user-2", false); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := svc.Revoke(ctx, created.Link.LinkID, "admin-1", true); err != nil {
		t.Errorf("admin revoke: %v", err)
	}
	if err := svc.Revoke(ctx, "link_missing", "user-1", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, _ = svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "a", ExpiresHours: 1})
	_, _ = svc.Create(ctx, "user-1", CreateRequest{ResourceType: ResourceStudy, ResourceID: "b", ExpiresHours: 100})

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated %d links, want 1", n)
	}
}
