package facegate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockRepo struct {
	profiles map[string]*Profile
	attempts []*Attempt
	settings map[string]string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		profiles: make(map[string]*Profile),
		settings: make(map[string]string),
	}
}

func (m *mockRepo) UpsertProfile(_ context.Context, p *Profile) error {
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *mockRepo) GetProfile(_ context.Context, userID string) (*Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockRepo) DeactivateProfile(_ context.Context, userID string) error {
	p, ok := m.profiles[userID]
	if !ok {
		return sql.ErrNoRows
	}
	p.IsActive = false
	return nil
}

func (m *mockRepo) RecordUse(_ context.Context, userID string, at time.Time) error {
	if p, ok := m.profiles[userID]; ok {
		p.UsageCount++
		p.LastUsed = &at
	}
	return nil
}

func (m *mockRepo) InsertAttempt(_ context.Context, a *Attempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockRepo) CountRecentAttempts(_ context.Context, userID string, since time.Time) (int, error) {
	var n int
	for _, a := range m.attempts {
		if a.UserID == userID && !a.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListAttempts(_ context.Context, userID string, limit, offset int) ([]*Attempt, int, error) {
	var items []*Attempt
	for _, a := range m.attempts {
		if a.UserID == userID {
			items = append(items, a)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) GetSettings(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *mockRepo) SetSetting(_ context.Context, key, value string, _ time.Time) error {
	m.settings[key] = value
	return nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, nil, zerolog.Nop())
}

func sampleEncoding(base float64) []float64 {
	v := make([]float64, EncodingDims)
	for i := range v {
		v[i] = base
	}
	return v
}

func TestEnrollAndVerifyMatch(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	enc := sampleEncoding(0.1)
	if _, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", Encoding: enc}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	result, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", Encoding: enc})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified {
		t.Errorf("identical encoding not verified, distance=%f", result.Distance)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %f, want 1", result.Confidence)
	}
	if repo.profiles["u1"].UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", repo.profiles["u1"].UsageCount)
	}
	if len(repo.attempts) != 1 || !repo.attempts[0].Success {
		t.Errorf("expected one successful attempt, got %+v", repo.attempts)
	}
}

func TestVerifyRejectsDistantEncoding(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", Encoding: sampleEncoding(0.1)}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// Per-dimension delta of 0.1 across 128 dims gives distance ~1.13,
	// well beyond the 0.4 default limit.
	result, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", Encoding: sampleEncoding(0.2)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Error("distant encoding was verified")
	}
	if len(repo.attempts) != 1 || repo.attempts[0].FailureReason != "distance_exceeded" {
		t.Errorf("expected distance_exceeded attempt, got %+v", repo.attempts)
	}
}

func TestEnrollRejectsWrongDimensions(t *testing.T) {
	svc := newTestService(newMockRepo())
	if _, err := svc.Enroll(context.Background(), EnrollRequest{UserID: "u1", Encoding: make([]float64, 64)}); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("err = %v, want ErrInvalidEncoding", err)
	}
}

func TestVerifyUnknownUser(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	_, err := svc.Verify(context.Background(), VerifyRequest{UserID: "ghost", Encoding: sampleEncoding(0.1)})
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("err = %v, want ErrNotEnrolled", err)
	}
	if len(repo.attempts) != 1 || repo.attempts[0].FailureReason != "not_enrolled" {
		t.Errorf("expected not_enrolled attempt, got %+v", repo.attempts)
	}
}

func TestVerifyRateLimited(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	enc := sampleEncoding(0.1)
	if _, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", Encoding: enc}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < defaultMaxAttemptsPerHour; i++ {
		repo.attempts = append(repo.attempts, &Attempt{UserID: "u1", AttemptedAt: now})
	}

	_, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", Encoding: enc})
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if rl.Limit != defaultMaxAttemptsPerHour {
		t.Errorf("limit = %d, want %d", rl.Limit, defaultMaxAttemptsPerHour)
	}
	last := repo.attempts[len(repo.attempts)-1]
	if last.FailureReason != "rate_limited" {
		t.Errorf("failure reason = %q, want rate_limited", last.FailureReason)
	}
}

func TestVerifyIgnoresOldAttempts(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	enc := sampleEncoding(0.1)
	if _, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", Encoding: enc}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	old := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 20; i++ {
		repo.attempts = append(repo.attempts, &Attempt{UserID: "u1", AttemptedAt: old})
	}

	result, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", Encoding: enc})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified {
		t.Error("attempts outside the window should not count against the limit")
	}
}

func TestVerifyDisabledBySetting(t *testing.T) {
	repo := newMockRepo()
	repo.settings[SettingEnabled] = "false"
	svc := newTestService(repo)

	_, err := svc.Verify(context.Background(), VerifyRequest{UserID: "u1", Encoding: sampleEncoding(0.1)})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestVerifyInactiveProfile(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	enc := sampleEncoding(0.1)
	if _, err := svc.Enroll(ctx, EnrollRequest{UserID: "u1", Encoding: enc}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := svc.Unenroll(ctx, "u1", "admin-1"); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}

	if _, err := svc.Verify(ctx, VerifyRequest{UserID: "u1", Encoding: enc}); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("err = %v, want ErrNotEnrolled after unenroll", err)
	}
}

func TestSettingsDefaultsAndUpdates(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	settings, err := svc.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if settings[SettingMaxAttemptsPerHour] != "10" {
		t.Errorf("max_attempts_per_hour default = %q, want 10", settings[SettingMaxAttemptsPerHour])
	}
	if settings[SettingMaxDistance] != "0.4" {
		t.Errorf("max_distance default = %q, want 0.4", settings[SettingMaxDistance])
	}

	if err := svc.UpdateSetting(ctx, "admin-1", SettingMaxDistance, "0.3"); err != nil {
		t.Fatalf("UpdateSetting: %v", err)
	}
	settings, _ = svc.Settings(ctx)
	if settings[SettingMaxDistance] != "0.3" {
		t.Errorf("max_distance = %q after update, want 0.3", settings[SettingMaxDistance])
	}

	if err := svc.UpdateSetting(ctx, "admin-1", SettingMaxDistance, "5"); err == nil {
		t.Error("expected error for out-of-range max_distance")
	}
	if err := svc.UpdateSetting(ctx, "admin-1", "bogus_key", "1"); err == nil {
		t.Error("expected error for unknown setting key")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := sampleEncoding(0.25)
	v[7] = -1.5
	decoded, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(decoded) != EncodingDims {
		t.Fatalf("decoded length = %d, want %d", len(decoded), EncodingDims)
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Fatalf("decoded[%d] = %f, want %f", i, decoded[i], v[i])
		}
	}
}
