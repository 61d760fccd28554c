package authorization

import (
	"context"
	"time"
)

type DoctorRepository interface {
	Insert(ctx context.Context, d *ReferringDoctor) error
	GetByID(ctx context.Context, id string) (*ReferringDoctor, error)
	GetByHPCSA(ctx context.Context, hpcsaNumber string) (*ReferringDoctor, error)
	Update(ctx context.Context, d *ReferringDoctor) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ReferringDoctor, int, error)
}

type AuthRepository interface {
	Insert(ctx context.Context, a *Authorization) error
	GetByID(ctx context.Context, id string) (*Authorization, error)
	// GetActive finds the active, unexpired authorization for this exact
	// doctor/patient/study triple. An empty studyUID matches patient-wide
	// grants only.
	GetActive(ctx context.Context, doctorID, patientID, studyUID string, now time.Time) (*Authorization, error)
	Update(ctx context.Context, a *Authorization) error
	ListByDoctor(ctx context.Context, doctorID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error)
	ListByPatient(ctx context.Context, patientID string, activeOnly bool, limit, offset int) ([]*Authorization, int, error)
	ListExpiring(ctx context.Context, from, until time.Time) ([]*Authorization, error)
	ListExpired(ctx context.Context, now time.Time) ([]*Authorization, error)
	RecordAccess(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, now time.Time, expiringUntil time.Time) (*Stats, error)
}
