package repository

import (
	"context"
	"errors"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

var (
	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrAlreadyQueued        = errors.New("patient already waiting in queue")
	ErrStatusConflict       = errors.New("status changed concurrently")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrConsultationNotFound = errors.New("consultation not found")
)

type QueueRepository interface {
	// Enqueue inserts a waiting entry and assigns its position, failing with
	// ErrAlreadyQueued when the patient already waits.
	Enqueue(ctx context.Context, entry *domain.QueueEntry) error
	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)
	FindWaitingByPatient(ctx context.Context, patientID string) (*domain.QueueEntry, error)
	// Rank is the live 1-based place of a waiting entry in the queue.
	Rank(ctx context.Context, entry *domain.QueueEntry) (int, error)
	ListWaiting(ctx context.Context) ([]*domain.QueueEntry, error)
	NextWaiting(ctx context.Context) (*domain.QueueEntry, error)
	CountWaiting(ctx context.Context) (int, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.QueueStatus) error
	DeleteWaiting(ctx context.Context, patientID string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.UserStatus) error
	ListByRoleStatus(ctx context.Context, role domain.Role, status domain.UserStatus) ([]*domain.User, error)
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *domain.Consultation) error
	GetByID(ctx context.Context, id string) (*domain.Consultation, error)
	// Finish moves an active record to finished, stamping endedAt.
	Finish(ctx context.Context, id string, endedAt time.Time) error
}
