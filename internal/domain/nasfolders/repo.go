package nasfolders

import (
	"context"
	"time"
)

type DeviceRepository interface {
	Insert(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id string) (*Device, error)
	GetByIP(ctx context.Context, ip string) (*Device, error)
	List(ctx context.Context, activeOnly bool) ([]*Device, error)
	Update(ctx context.Context, d *Device) error
	Deactivate(ctx context.Context, id string) error
}

type FolderRepository interface {
	Insert(ctx context.Context, f *Folder) error
	GetByID(ctx context.Context, id string) (*Folder, error)
	List(ctx context.Context, deviceID, procedureType string) ([]*Folder, error)
	Update(ctx context.Context, f *Folder) error
	Deactivate(ctx context.Context, id string) error
	RecordTest(ctx context.Context, id string, at time.Time, success bool) error
	ProcedureSummaries(ctx context.Context) ([]*ProcedureSummary, error)
}
