package authorization

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockDoctorRepo struct {
	doctors map[string]*ReferringDoctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[string]*ReferringDoctor)}
}

func (m *mockDoctorRepo) Insert(ctx context.Context, d *ReferringDoctor) error {
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(ctx context.Context, id string) (*ReferringDoctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDoctorRepo) GetByHPCSA(ctx context.Context, hpcsa string) (*ReferringDoctor, error) {
	for _, d := range m.doctors {
		if d.HPCSANumber == hpcsa {
			return d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockDoctorRepo) Update(ctx context.Context, d *ReferringDoctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return sql.ErrNoRows
	}
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ReferringDoctor, int, error) {
	var out []*ReferringDoctor
	for _, d := range m.doctors {
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

type mockAuthRepo struct {
	auths map[string]*Authorization
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{auths: make(map[string]*Authorization)}
}

func (m *mockAuthRepo) Insert(ctx context.Context, a *Authorization) error {
	m.auths[a.ID] = a
	return nil
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id string) (*Authorization, error) {
	if a, ok := m.auths[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) GetActive(ctx context.Context, doctorID, patientID, studyUID string, now time.Time) (*Authorization, error) {
	for _, a := range m.auths {
		if a.DoctorID != doctorID || a.PatientID != patientID || a.StudyInstanceUID != studyUID {
			continue
		}
		if !a.IsActive {
			continue
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			continue
		}
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Update(ctx context.Context, a *Authorization) error {
	if _, ok := m.auths[a.ID]; !ok {
		return sql.ErrNoRows
	}
	m.auths[a.ID] = a
	return nil
}

func (m *mockAuthRepo) ListByDoctor(ctx context.Context, doctorID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	var out []*Authorization
	for _, a := range m.auths {
		if a.DoctorID == doctorID && (!activeOnly || a.IsActive) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockAuthRepo) ListByPatient(ctx context.Context, patientID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error) {
	var out []*Authorization
	for _, a := range m.auths {
		if a.PatientID == patientID && (!activeOnly || a.IsActive) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockAuthRepo) ListExpiring(ctx context.Context, from, until time.Time) ([]*Authorization, error) {
	var out []*Authorization
	for _, a := range m.auths {
		if a.IsActive && a.ExpiresAt != nil && a.ExpiresAt.After(from) && !a.ExpiresAt.After(until) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAuthRepo) ListExpired(ctx context.Context, now time.Time) ([]*Authorization, error) {
	var out []*Authorization
	for _, a := range m.auths {
		if a.IsActive && a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAuthRepo) RecordAccess(ctx context.Context, id string, at time.Time) error {
	if a, ok := m.auths[id]; ok {
		a.AccessCount++
		a.LastAccessed = &at
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockAuthRepo) Stats(ctx context.Context, now, until time.Time) (*Stats, error) {
	return &Stats{TotalAuthorizations: len(m.auths), ByAccessLevel: map[string]int{}}, nil
}

func newTestService() (*Service, *mockDoctorRepo, *mockAuthRepo) {
	doctors := newMockDoctorRepo()
	auths := newMockAuthRepo()
	return NewService(doctors, auths, nil, zerolog.Nop()), doctors, auths
}

func registerDoctor(t *testing.T, svc *Service, hpcsa, tier string) *ReferringDoctor {
	t.Helper()
	d, err := svc.RegisterDoctor(context.Background(), ReferringDoctor{
		Name:        "Dr Nkosi",
		HPCSANumber: hpcsa,
		AccessLevel: tier,
	})
	if err != nil {
		t.Fatalf("RegisterDoctor: %v", err)
	}
	return d
}

func TestRegisterDoctorValidatesHPCSA(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for _, bad := range []string{"", "MP12345", "MP12345678", "XX123456", "mp123456"} {
		if _, err := svc.RegisterDoctor(ctx, ReferringDoctor{Name: "Dr X", HPCSANumber: bad}); err == nil {
			t.Errorf("HPCSA %q: expected rejection", bad)
		}
	}

	for _, good := range []string{"MP123456", "MP1234567"} {
		if _, err := svc.RegisterDoctor(ctx, ReferringDoctor{Name: "Dr X", HPCSANumber: good}); err != nil {
			t.Errorf("HPCSA %q: %v", good, err)
		}
	}
}

func TestRegisterDoctorRejectsDuplicateHPCSA(t *testing.T) {
	svc, _, _ := newTestService()
	registerDoctor(t, svc, "MP123456", "")

	_, err := svc.RegisterDoctor(context.Background(), ReferringDoctor{Name: "Dr Y", HPCSANumber: "MP123456"})
	if !errors.Is(err, ErrDuplicateHPCSA) {
		t.Errorf("expected ErrDuplicateHPCSA, got %v", err)
	}
}

func TestGrantAndDuplicateRejection(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	req := GrantRequest{DoctorID: d.ID, PatientID: "P001", AccessLevel: AccessViewOnly}
	a, err := svc.Grant(ctx, "admin-1", req)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !a.IsActive || a.GrantedBy != "admin-1" {
		t.Errorf("unexpected authorization: %+v", a)
	}

	if _, err := svc.Grant(ctx, "admin-1", req); !errors.Is(err, ErrDuplicateActive) {
		t.Errorf("expected ErrDuplicateActive, got %v", err)
	}

	// A different study scope is a separate grant.
	req.StudyInstanceUID = "1.2.3"
	if _, err := svc.Grant(ctx, "admin-1", req); err != nil {
		t.Errorf("study-scoped grant: %v", err)
	}
}

func TestGrantRejectsInactiveDoctor(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")
	if err := svc.DeactivateDoctor(ctx, d.ID); err != nil {
		t.Fatalf("DeactivateDoctor: %v", err)
	}

	_, err := svc.Grant(ctx, "admin-1", GrantRequest{DoctorID: d.ID, PatientID: "P001"})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestCheckAccessAdminBypass(t *testing.T) {
	svc, _, _ := newTestService()
	d := registerDoctor(t, svc, "MP123456", DoctorAccessAdmin)

	decision, err := svc.CheckAccess(context.Background(), d.ID, "P001", "")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !decision.HasAccess || decision.AccessLevel != DoctorAccessAdmin {
		t.Errorf("admin doctor should bypass grants: %+v", decision)
	}
}

func TestCheckAccessStudyFallsBackToPatient(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	// Patient-wide grant, no study scope.
	if _, err := svc.Grant(ctx, "admin-1", GrantRequest{
		DoctorID: d.ID, PatientID: "P001", AccessLevel: AccessDownload,
	}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	decision, err := svc.CheckAccess(ctx, d.ID, "P001", "1.2.3.4")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !decision.HasAccess || decision.AccessLevel != AccessDownload {
		t.Errorf("study check should fall back to patient grant: %+v", decision)
	}
	if decision.Authorization == nil || decision.Authorization.AccessCount != 1 {
		t.Error("granting access should record use")
	}
}

func TestCheckAccessDenied(t *testing.T) {
	svc, _, _ := newTestService()
	d := registerDoctor(t, svc, "MP123456", "")

	decision, err := svc.CheckAccess(context.Background(), d.ID, "P999", "")
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if decision.HasAccess || decision.AccessLevel != "none" {
		t.Errorf("expected denial: %+v", decision)
	}

	// Unknown doctor also denies rather than erroring.
	decision, err = svc.CheckAccess(context.Background(), "no-such-doctor", "P001", "")
	if err != nil || decision.HasAccess {
		t.Errorf("unknown doctor: decision=%+v err=%v", decision, err)
	}
}

func TestExtendAndRevoke(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	a, err := svc.Grant(ctx, "admin-1", GrantRequest{DoctorID: d.ID, PatientID: "P001"})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if _, err := svc.Extend(ctx, a.ID, time.Now().UTC().Add(-time.Hour), "admin-1"); !errors.Is(err, ErrExpiryInPast) {
		t.Errorf("expected ErrExpiryInPast, got %v", err)
	}

	newExpiry := time.Now().UTC().Add(72 * time.Hour)
	extended, err := svc.Extend(ctx, a.ID, newExpiry, "admin-1")
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if extended.ExpiresAt == nil || !extended.ExpiresAt.Equal(newExpiry) {
		t.Error("expiry not updated")
	}

	revoked, err := svc.Revoke(ctx, a.ID, "admin-1", "patient request")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked.IsActive || revoked.RevokedBy != "admin-1" || revoked.RevokedReason != "patient request" {
		t.Errorf("unexpected revoked state: %+v", revoked)
	}

	if _, err := svc.Revoke(ctx, a.ID, "admin-1", "again"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestUpdateAuthorization(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	a, err := svc.Grant(ctx, "admin-1", GrantRequest{DoctorID: d.ID, PatientID: "P001", AccessLevel: AccessViewOnly})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	level := AccessDownload
	notes := "upgraded for follow-up imaging"
	updated, err := svc.UpdateAuthorization(ctx, a.ID, "admin-1", UpdateAuthRequest{
		AccessLevel: &level,
		Notes:       &notes,
	})
	if err != nil {
		t.Fatalf("UpdateAuthorization: %v", err)
	}
	if updated.AccessLevel != AccessDownload || updated.Notes != notes {
		t.Errorf("unexpected updated state: %+v", updated)
	}
	if updated.UpdatedAt == nil {
		t.Error("updated_at not stamped")
	}

	bad := "root"
	if _, err := svc.UpdateAuthorization(ctx, a.ID, "admin-1", UpdateAuthRequest{AccessLevel: &bad}); !errors.Is(err, ErrInvalidAccessTier) {
		t.Errorf("expected ErrInvalidAccessTier, got %v", err)
	}

	if _, err := svc.Revoke(ctx, a.ID, "admin-1", "done"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.UpdateAuthorization(ctx, a.ID, "admin-1", UpdateAuthRequest{Notes: &notes}); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestBulkGrantCollectsErrors(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	created, failures := svc.BulkGrant(ctx, "admin-1", []GrantRequest{
		{DoctorID: d.ID, PatientID: "P001"},
		{DoctorID: d.ID, PatientID: "P001"},        // duplicate
		{DoctorID: "missing", PatientID: "P002"},   // unknown doctor
		{DoctorID: d.ID, PatientID: "P003"},
	})
	if len(created) != 2 {
		t.Errorf("created %d, want 2", len(created))
	}
	if len(failures) != 2 {
		t.Errorf("failures %d, want 2", len(failures))
	}
}

func TestCleanupExpired(t *testing.T) {
	svc, _, auths := newTestService()
	ctx := context.Background()
	d := registerDoctor(t, svc, "MP123456", "")

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	auths.auths["a1"] = &Authorization{ID: "a1", DoctorID: d.ID, PatientID: "P1", IsActive: true, ExpiresAt: &past}
	auths.auths["a2"] = &Authorization{ID: "a2", DoctorID: d.ID, PatientID: "P2", IsActive: true, ExpiresAt: &future}
	auths.auths["a3"] = &Authorization{ID: "a3", DoctorID: d.ID, PatientID: "P3", IsActive: true}

	n, err := svc.CleanupExpired(ctx, "admin-1")
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned %d, want 1", n)
	}
	if auths.auths["a1"].IsActive {
		t.Error("expired authorization still active")
	}
	if !auths.auths["a2"].IsActive || !auths.auths["a3"].IsActive {
		t.Error("unexpired authorizations must stay active")
	}
}

func TestListExpiring(t *testing.T) {
	svc, _, auths := newTestService()
	d := registerDoctor(t, svc, "MP123456", "")

	in3d := time.Now().UTC().AddDate(0, 0, 3)
	in30d := time.Now().UTC().AddDate(0, 0, 30)
	auths.auths["a1"] = &Authorization{ID: "a1", DoctorID: d.ID, PatientID: "P1", IsActive: true, ExpiresAt: &in3d}
	auths.auths["a2"] = &Authorization{ID: "a2", DoctorID: d.ID, PatientID: "P2", IsActive: true, ExpiresAt: &in30d}

	items, err := svc.ListExpiring(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a1" {
		t.Errorf("expected only a1, got %d items", len(items))
	}
}
