package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder is the write-side interface other services depend on. Recording
// is best effort: callers must not fail their own operation when the audit
// write fails.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record persists an audit entry, filling in the ID and timestamp.
func (s *Service) Record(ctx context.Context, e Entry) error {
	e.ID = uuid.NewString()
	e.RecordedAt = time.Now().UTC()
	if e.Details == "" {
		e.Details = "{}"
	}
	if err := s.repo.Insert(ctx, &e); err != nil {
		s.logger.Error().Err(err).Str("action", e.Action).Msg("audit write failed")
		return err
	}
	return nil
}

// RecordEvent is a convenience wrapper that marshals details to JSON.
func (s *Service) RecordEvent(ctx context.Context, actorID, action, resourceType, resourceID, category string, details map[string]any) error {
	detailsJSON := "{}"
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err == nil {
			detailsJSON = string(raw)
		}
	}
	return s.Record(ctx, Entry{
		ActorID:            actorID,
		ActorType:          "user",
		Action:             action,
		ResourceType:       resourceType,
		ResourceID:         resourceID,
		Details:            detailsJSON,
		ComplianceCategory: category,
	})
}

func (s *Service) GetEntry(ctx context.Context, id string) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]*Entry, int, error) {
	return s.repo.Search(ctx, filters, limit, offset)
}

func (s *Service) GetStats(ctx context.Context, filters SearchFilters) (*Stats, error) {
	return s.repo.Stats(ctx, filters)
}
