package imaging

import "context"

type Repository interface {
	Insert(ctx context.Context, s *Study) error
	GetByID(ctx context.Context, id string) (*Study, error)
	GetByStudyUID(ctx context.Context, uid string) (*Study, error)
	Update(ctx context.Context, s *Study) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Study, int, error)
}
