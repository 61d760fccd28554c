package facegate

import (
	"context"
	"time"
)

type Repository interface {
	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	DeactivateProfile(ctx context.Context, userID string) error
	RecordUse(ctx context.Context, userID string, at time.Time) error
	InsertAttempt(ctx context.Context, a *Attempt) error
	CountRecentAttempts(ctx context.Context, userID string, since time.Time) (int, error)
	ListAttempts(ctx context.Context, userID string, limit, offset int) ([]*Attempt, int, error)
	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string, at time.Time) error
}
