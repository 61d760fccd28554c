package fhirmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// localIDSystem is the FHIR system URI for the local EMR identifier.
const localIDSystem = "http://impilo.health/identifier/emr"

var (
	ErrNotFound       = errors.New("patient mapping not found")
	ErrAlreadyMapped  = errors.New("local ID is already mapped")
	ErrUUIDTaken      = errors.New("FHIR UUID is already mapped to another patient")
	ErrInvalidIDType  = errors.New("id_type must be sa_id_number, medical_aid or passport")
	ErrDuplicateExtID = errors.New("an identifier of this type already exists for the patient")
	ErrExtIDNotFound  = errors.New("external identifier not found")
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "fhirmap").Logger(),
		now:    time.Now,
	}
}

// Register maps a local patient ID to a FHIR UUID, generating the UUID
// when the caller does not supply one.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Mapping, error) {
	if req.LocalID == "" {
		return nil, errors.New("local_id is required")
	}
	if existing, err := s.repo.GetByLocalID(ctx, req.LocalID); err == nil && existing != nil {
		return nil, ErrAlreadyMapped
	}

	fhirUUID := req.FHIRUUID
	if fhirUUID == "" {
		fhirUUID = uuid.NewString()
	} else {
		if _, err := uuid.Parse(fhirUUID); err != nil {
			return nil, fmt.Errorf("invalid FHIR UUID: %w", err)
		}
		if existing, err := s.repo.GetByFHIRUUID(ctx, fhirUUID); err == nil && existing != nil {
			return nil, ErrUUIDTaken
		}
	}

	m := &Mapping{
		LocalID:   req.LocalID,
		FHIRUUID:  fhirUUID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.InsertMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("insert mapping: %w", err)
	}
	s.logger.Info().Str("local_id", m.LocalID).Str("fhir_uuid", m.FHIRUUID).Msg("patient mapping registered")
	return m, nil
}

func (s *Service) LookupByLocalID(ctx context.Context, localID string) (*Mapping, error) {
	m, err := s.repo.GetByLocalID(ctx, localID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *Service) LookupByFHIRUUID(ctx context.Context, fhirUUID string) (*Mapping, error) {
	m, err := s.repo.GetByFHIRUUID(ctx, fhirUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Mapping, int, error) {
	return s.repo.ListMappings(ctx, limit, offset)
}

func (s *Service) Delete(ctx context.Context, localID string) error {
	if err := s.repo.DeleteMapping(ctx, localID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// AddExternalID attaches an additional identifier to a mapped patient.
// One identifier per type.
func (s *Service) AddExternalID(ctx context.Context, localID string, req AddExternalIDRequest) (*ExternalID, error) {
	if !ValidIDType(req.IDType) {
		return nil, ErrInvalidIDType
	}
	if req.IDValue == "" {
		return nil, errors.New("id_value is required")
	}
	m, err := s.LookupByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListExternalIDs(ctx, m.FHIRUUID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.IDType == req.IDType {
			return nil, ErrDuplicateExtID
		}
	}

	e := &ExternalID{
		ID:       uuid.NewString(),
		FHIRUUID: m.FHIRUUID,
		IDType:   req.IDType,
		IDValue:  req.IDValue,
		IDSystem: idSystems[req.IDType],
	}
	if err := s.repo.InsertExternalID(ctx, e); err != nil {
		return nil, fmt.Errorf("insert external id: %w", err)
	}
	return e, nil
}

func (s *Service) RemoveExternalID(ctx context.Context, id string) error {
	if err := s.repo.DeleteExternalID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExtIDNotFound
		}
		return err
	}
	return nil
}

// IdentifierBundle assembles the FHIR Patient identifier list: the
// local EMR ID as the official identifier plus every external ID.
func (s *Service) IdentifierBundle(ctx context.Context, localID string) (*IdentifierBundle, error) {
	m, err := s.LookupByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}
	externals, err := s.repo.ListExternalIDs(ctx, m.FHIRUUID)
	if err != nil {
		return nil, err
	}

	bundle := &IdentifierBundle{
		LocalID:  m.LocalID,
		FHIRUUID: m.FHIRUUID,
		Identifiers: []Identifier{
			{Use: "official", System: localIDSystem, Value: m.LocalID},
		},
	}
	for _, e := range externals {
		bundle.Identifiers = append(bundle.Identifiers, Identifier{
			Use:    "secondary",
			System: e.IDSystem,
			Value:  e.IDValue,
		})
	}
	return bundle, nil
}
