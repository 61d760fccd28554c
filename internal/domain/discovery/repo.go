package discovery

import "context"

type Repository interface {
	InsertScan(ctx context.Context, s *Scan) error
	FinishScan(ctx context.Context, s *Scan) error
	GetScan(ctx context.Context, id string) (*Scan, error)
	ListScans(ctx context.Context, limit, offset int) ([]*Scan, int, error)
	InsertDiscovered(ctx context.Context, d *Discovered) error
	GetDiscovered(ctx context.Context, id string) (*Discovered, error)
	ListDiscovered(ctx context.Context, scanID string) ([]*Discovered, error)
	MarkPromoted(ctx context.Context, id string) error
}
