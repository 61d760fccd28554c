package telemed

import (
	"context"
	"time"
)

type ListFilters struct {
	PatientID string
	DoctorID  string // matches requesting doctor or consulting specialist
	Status    string
}

type Repository interface {
	Insert(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id string) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	List(ctx context.Context, f ListFilters, limit, offset int) ([]*Consultation, int, error)
	ListUpcoming(ctx context.Context, doctorID string, from time.Time, limit int) ([]*Consultation, error)
	InsertParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, consultationID, userID string) (*Participant, error)
	UpdateParticipant(ctx context.Context, p *Participant) error
	ListParticipants(ctx context.Context, consultationID string) ([]*Participant, error)
}
