package fhirmap

import "context"

type Repository interface {
	InsertMapping(ctx context.Context, m *Mapping) error
	GetByLocalID(ctx context.Context, localID string) (*Mapping, error)
	GetByFHIRUUID(ctx context.Context, fhirUUID string) (*Mapping, error)
	ListMappings(ctx context.Context, limit, offset int) ([]*Mapping, int, error)
	DeleteMapping(ctx context.Context, localID string) error
	InsertExternalID(ctx context.Context, e *ExternalID) error
	ListExternalIDs(ctx context.Context, fhirUUID string) ([]*ExternalID, error)
	DeleteExternalID(ctx context.Context, id string) error
}
