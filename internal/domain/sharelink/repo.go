package sharelink

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, link *Link) error
	GetByID(ctx context.Context, linkID string) (*Link, error)
	GetByToken(ctx context.Context, accessToken string) (*Link, error)
	ListByCreator(ctx context.Context, createdBy string, activeOnly bool, limit, offset int) ([]*Link, int, error)
	RecordView(ctx context.Context, linkID string, at time.Time) error
	Deactivate(ctx context.Context, linkID string) error
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	InsertAttempt(ctx context.Context, attempt *AccessAttempt) error
	ListAttempts(ctx context.Context, linkID string, limit, offset int) ([]*AccessAttempt, int, error)
	Stats(ctx context.Context, createdBy string, since time.Time) (*Stats, error)
}
