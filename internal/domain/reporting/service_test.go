package reporting

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type mockRepo struct {
	reports map[string]*Report
}

func newMockRepo() *mockRepo {
	return &mockRepo{reports: make(map[string]*Report)}
}

func (m *mockRepo) Insert(_ context.Context, r *Report) error {
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (m *mockRepo) Update(_ context.Context, r *Report) error {
	if _, ok := m.reports[r.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockRepo) Search(_ context.Context, f SearchFilters, limit, offset int) ([]*Report, int, error) {
	var out []*Report
	for _, r := range m.reports {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func newTestService() *Service {
	return NewService(newMockRepo(), nil, zerolog.Nop())
}

func seedReport(t *testing.T, svc *Service) *Report {
	t.Helper()
	r, err := svc.Create(context.Background(), "rad-1", CreateRequest{
		StudyInstanceUID: "1.2.3",
		PatientID:        "PAT001",
		Findings:         "No acute abnormality.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func fptr(f float64) *float64 { return &f }
func iptr(n int) *int         { return &n }

func TestCreateStartsAsDraft(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	if r.Status != StatusDraft {
		t.Errorf("status = %q, want draft", r.Status)
	}
	if r.ClinicalData != "{}" {
		t.Errorf("clinical data = %q, want empty document", r.ClinicalData)
	}
}

func TestWorkflowHappyPath(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	ctx := context.Background()

	steps := []struct {
		to   string
		role string
	}{
		{StatusDictated, "radiologist"},
		{StatusTranscribed, "typist"},
		{StatusReviewed, "radiologist"},
		{StatusAuthorized, "radiologist"},
	}
	for _, step := range steps {
		var err error
		r, err = svc.Transition(ctx, "actor-1", step.role, r.ID, step.to)
		if err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
	}
	if r.Status != StatusAuthorized {
		t.Errorf("final status = %q", r.Status)
	}
	if r.AuthorizedAt == nil {
		t.Error("authorized_at not stamped")
	}
	if r.TypistID != "actor-1" {
		t.Errorf("typist_id = %q, want the transcribing typist", r.TypistID)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	ctx := context.Background()

	var te *TransitionError
	if _, err := svc.Transition(ctx, "rad-1", "radiologist", r.ID, StatusAuthorized); !errors.As(err, &te) {
		t.Errorf("draft->authorized err = %v, want TransitionError", err)
	}
	if _, err := svc.Transition(ctx, "rad-1", "radiologist", r.ID, StatusReviewed); !errors.As(err, &te) {
		t.Errorf("draft->reviewed err = %v, want TransitionError", err)
	}
}

func TestAuthorizedReportIsLocked(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	ctx := context.Background()

	for _, to := range []string{StatusDictated, StatusTranscribed, StatusReviewed, StatusAuthorized} {
		var err error
		r, err = svc.Transition(ctx, "rad-1", "radiologist", r.ID, to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	findings := "amended"
	if _, err := svc.Update(ctx, "rad-1", r.ID, UpdateRequest{Findings: &findings}); !errors.Is(err, ErrLocked) {
		t.Errorf("update err = %v, want ErrLocked", err)
	}
	if _, err := svc.SetClinicalData(ctx, "rad-1", r.ID, ClinicalData{}); !errors.Is(err, ErrLocked) {
		t.Errorf("clinical data err = %v, want ErrLocked", err)
	}
}

func TestReturnForCorrection(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	ctx := context.Background()

	for _, to := range []string{StatusDictated, StatusTranscribed, StatusReviewed} {
		var err error
		r, err = svc.Transition(ctx, "rad-1", "radiologist", r.ID, to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	// Reviewer sends it back for re-transcription.
	r, err := svc.Transition(ctx, "rad-1", "radiologist", r.ID, StatusTranscribed)
	if err != nil {
		t.Fatalf("reviewed->transcribed: %v", err)
	}
	if r.Status != StatusTranscribed {
		t.Errorf("status = %q", r.Status)
	}
}

func TestValidateClinicalDataRanges(t *testing.T) {
	cases := []struct {
		name     string
		data     ClinicalData
		valid    bool
		warnPart string
		errPart  string
	}{
		{"all in range", ClinicalData{EjectionFraction: fptr(62), LVMass: fptr(140), BIRADS: iptr(2)}, true, "", ""},
		{"low EF warns", ClinicalData{EjectionFraction: fptr(32)}, true, "below 40%", ""},
		{"EF out of range", ClinicalData{EjectionFraction: fptr(130)}, false, "", "ejection fraction"},
		{"low CBF warns", ClinicalData{CBF: fptr(15)}, true, "hypoperfusion", ""},
		{"MTT out of range", ClinicalData{MTT: fptr(22)}, false, "", "MTT"},
		{"LV mass out of range", ClinicalData{LVMass: fptr(700)}, false, "", "LV mass"},
		{"calcium out of range", ClinicalData{CalciumScore: fptr(6000)}, false, "", "calcium score"},
		{"BI-RADS out of range", ClinicalData{BIRADS: iptr(7)}, false, "", "BI-RADS"},
		{"ischemia out of range", ClinicalData{IschemiaExtent: fptr(-5)}, false, "", "ischemia"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateClinicalData(tc.data)
			if result.Valid != tc.valid {
				t.Errorf("valid = %v, want %v (errors: %v)", result.Valid, tc.valid, result.Errors)
			}
			if tc.warnPart != "" && !containsSubstring(result.Warnings, tc.warnPart) {
				t.Errorf("warnings %v missing %q", result.Warnings, tc.warnPart)
			}
			if tc.errPart != "" && !containsSubstring(result.Errors, tc.errPart) {
				t.Errorf("errors %v missing %q", result.Errors, tc.errPart)
			}
		})
	}
}

func TestSetClinicalDataPersistsNormalizedDocument(t *testing.T) {
	svc := newTestService()
	r := seedReport(t, svc)
	ctx := context.Background()

	result, err := svc.SetClinicalData(ctx, "rad-1", r.ID, ClinicalData{EjectionFraction: fptr(55)})
	if err != nil {
		t.Fatalf("SetClinicalData: %v", err)
	}
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	stored, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(stored.ClinicalData, "ejection_fraction") {
		t.Errorf("clinical data = %q, expected normalized document", stored.ClinicalData)
	}

	// Invalid measurements must not be persisted.
	result, err = svc.SetClinicalData(ctx, "rad-1", r.ID, ClinicalData{EjectionFraction: fptr(130)})
	if err != nil {
		t.Fatalf("SetClinicalData: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	stored, _ = svc.Get(ctx, r.ID)
	if strings.Contains(stored.ClinicalData, "130") {
		t.Error("invalid data was persisted")
	}
}

func containsSubstring(items []string, part string) bool {
	for _, s := range items {
		if strings.Contains(s, part) {
			return true
		}
	}
	return false
}
