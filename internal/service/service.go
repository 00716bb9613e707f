package service

import (
	"context"
	"errors"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

var (
	ErrEntryTaken        = errors.New("consultation no longer available")
	ErrEntryMismatch     = errors.New("queue entry belongs to another patient")
	ErrDoctorUnavailable = errors.New("doctor is not available")
	ErrNotParticipant    = errors.New("user is not part of this consultation")
	ErrAlreadyFinished   = errors.New("consultation already finished")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidStatus     = errors.New("invalid status")
)

// Publisher delivers relay events produced by the server.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type QueueInteractor interface {
	Join(ctx context.Context, patientID, consultationType string) (*domain.QueueEntry, error)
	Leave(ctx context.Context, patientID string) error
	Position(ctx context.Context, patientID string) (*domain.QueueEntry, int, error)
	Waiting(ctx context.Context) ([]*domain.QueueEntry, error)
	Next(ctx context.Context) (*domain.QueueEntry, error)
}

type ConsultationInteractor interface {
	Accept(ctx context.Context, doctorID, patientID, entryID string) (*AcceptResult, error)
	Reject(ctx context.Context, doctorID, patientID, entryID string) error
	Finish(ctx context.Context, recordID, doctorID string) (*domain.Consultation, error)
	GetConsultation(ctx context.Context, id string) (*domain.Consultation, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, name string, role domain.Role, specialty string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
	AvailableDoctors(ctx context.Context) ([]*domain.User, error)
}
