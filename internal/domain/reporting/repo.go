package reporting

import "context"

type Repository interface {
	Insert(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id string) (*Report, error)
	Update(ctx context.Context, r *Report) error
	Search(ctx context.Context, f SearchFilters, limit, offset int) ([]*Report, int, error)
}
