package audit

import "context"

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id string) (*Entry, error)
	Search(ctx context.Context, filters SearchFilters, limit, offset int) ([]*Entry, int, error)
	Stats(ctx context.Context, filters SearchFilters) (*Stats, error)
}
