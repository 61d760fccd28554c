package fhirmap

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	mappings  map[string]*Mapping // by local ID
	externals map[string]*ExternalID
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		mappings:  make(map[string]*Mapping),
		externals: make(map[string]*ExternalID),
	}
}

func (m *mockRepo) InsertMapping(_ context.Context, mp *Mapping) error {
	cp := *mp
	m.mappings[mp.LocalID] = &cp
	return nil
}

func (m *mockRepo) GetByLocalID(_ context.Context, localID string) (*Mapping, error) {
	mp, ok := m.mappings[localID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return mp, nil
}

func (m *mockRepo) GetByFHIRUUID(_ context.Context, fhirUUID string) (*Mapping, error) {
	for _, mp := range m.mappings {
		if mp.FHIRUUID == fhirUUID {
			return mp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRepo) ListMappings(_ context.Context, limit, offset int) ([]*Mapping, int, error) {
	var out []*Mapping
	for _, mp := range m.mappings {
		out = append(out, mp)
	}
	return out, len(out), nil
}

func (m *mockRepo) DeleteMapping(_ context.Context, localID string) error {
	if _, ok := m.mappings[localID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.mappings, localID)
	return nil
}

func (m *mockRepo) InsertExternalID(_ context.Context, e *ExternalID) error {
	cp := *e
	m.externals[e.ID] = &cp
	return nil
}

func (m *mockRepo) ListExternalIDs(_ context.Context, fhirUUID string) ([]*ExternalID, error) {
	var out []*ExternalID
	for _, e := range m.externals {
		if e.FHIRUUID == fhirUUID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepo) DeleteExternalID(_ context.Context, id string) error {
	if _, ok := m.externals[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.externals, id)
	return nil
}

func newTestService() *Service {
	return NewService(newMockRepo(), zerolog.Nop())
}

func TestRegisterGeneratesUUID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	m, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-1001"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := uuid.Parse(m.FHIRUUID); err != nil {
		t.Errorf("generated FHIR UUID %q is not a valid uuid", m.FHIRUUID)
	}

	if _, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-1001"}); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("duplicate local err = %v, want ErrAlreadyMapped", err)
	}
}

func TestRegisterWithExplicitUUID(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	explicit := uuid.NewString()
	m, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-2001", FHIRUUID: explicit})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if m.FHIRUUID != explicit {
		t.Errorf("FHIR UUID = %q, want %q", m.FHIRUUID, explicit)
	}

	if _, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-2002", FHIRUUID: explicit}); !errors.Is(err, ErrUUIDTaken) {
		t.Errorf("reused UUID err = %v, want ErrUUIDTaken", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-2003", FHIRUUID: "not-a-uuid"}); err == nil {
		t.Error("expected error for malformed UUID")
	}
}

func TestBidirectionalLookup(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	m, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-3001"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	byLocal, err := svc.LookupByLocalID(ctx, "EMR-3001")
	if err != nil || byLocal.FHIRUUID != m.FHIRUUID {
		t.Errorf("LookupByLocalID = %+v, %v", byLocal, err)
	}
	byUUID, err := svc.LookupByFHIRUUID(ctx, m.FHIRUUID)
	if err != nil || byUUID.LocalID != "EMR-3001" {
		t.Errorf("LookupByFHIRUUID = %+v, %v", byUUID, err)
	}
	if _, err := svc.LookupByLocalID(ctx, "EMR-nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing lookup err = %v, want ErrNotFound", err)
	}
}

func TestExternalIDsAndBundle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{LocalID: "EMR-4001"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.AddExternalID(ctx, "EMR-4001", AddExternalIDRequest{IDType: "loyalty_card", IDValue: "x"}); !errors.Is(err, ErrInvalidIDType) {
		t.Errorf("bad type err = %v, want ErrInvalidIDType", err)
	}

	ext, err := svc.AddExternalID(ctx, "EMR-4001", AddExternalIDRequest{
		IDType: IDTypeNationalID, IDValue: "9001015009087",
	})
	if err != nil {
		t.Fatalf("AddExternalID: %v", err)
	}
	if ext.IDSystem != idSystems[IDTypeNationalID] {
		t.Errorf("system = %q", ext.IDSystem)
	}

	if _, err := svc.AddExternalID(ctx, "EMR-4001", AddExternalIDRequest{
		IDType: IDTypeNationalID, IDValue: "other",
	}); !errors.Is(err, ErrDuplicateExtID) {
		t.Errorf("duplicate type err = %v, want ErrDuplicateExtID", err)
	}

	if _, err := svc.AddExternalID(ctx, "EMR-4001", AddExternalIDRequest{
		IDType: IDTypeMedicalAid, IDValue: "DISC-555",
	}); err != nil {
		t.Fatalf("AddExternalID medical aid: %v", err)
	}

	bundle, err := svc.IdentifierBundle(ctx, "EMR-4001")
	if err != nil {
		t.Fatalf("IdentifierBundle: %v", err)
	}
	// Local EMR ID plus two externals.
	if len(bundle.Identifiers) != 3 {
		t.Fatalf("identifiers = %d, want 3", len(bundle.Identifiers))
	}
	if bundle.Identifiers[0].Use != "official" || bundle.Identifiers[0].Value != "EMR-4001" {
		t.Errorf("first identifier = %+v, want official EMR ID", bundle.Identifiers[0])
	}
}
