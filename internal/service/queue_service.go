package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

// EntryNotifier is told about every successful queue join.
type EntryNotifier interface {
	PublishNewEntry(ctx context.Context, entry *domain.QueueEntry)
}

type QueueService struct {
	queue    repository.QueueRepository
	users    repository.UserRepository
	notifier EntryNotifier
	log      *slog.Logger
}

func NewQueueService(
	queue repository.QueueRepository,
	users repository.UserRepository,
	notifier EntryNotifier,
	log *slog.Logger,
) *QueueService {
	if log == nil {
		log = slog.Default()
	}
	return &QueueService{
		queue:    queue,
		users:    users,
		notifier: notifier,
		log:      log,
	}
}

func (s *QueueService) Join(ctx context.Context, patientID, consultationType string) (*domain.QueueEntry, error) {
	const op = "service.queue.join"
	log := s.log.With(slog.String("op", op), slog.String("patient_id", patientID))

	if patientID == "" {
		return nil, errors.New("patient id is required")
	}
	if s.users != nil {
		user, err := s.users.GetByID(ctx, patientID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if user.Role != domain.RolePatient {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRole)
		}
	}

	entry := domain.NewQueueEntry(patientID, consultationType)
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		if !errors.Is(err, repository.ErrAlreadyQueued) {
			log.Error("failed to enqueue", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("patient queued",
		slog.String("entry_id", entry.ID),
		slog.Int("position", entry.Position),
		slog.String("type", entry.Type),
	)

	if s.notifier != nil {
		s.notifier.PublishNewEntry(ctx, entry)
	}
	return entry, nil
}

func (s *QueueService) Leave(ctx context.Context, patientID string) error {
	const op = "service.queue.leave"

	if err := s.queue.DeleteWaiting(ctx, patientID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("patient left queue", slog.String("op", op), slog.String("patient_id", patientID))
	return nil
}

// Position returns the patient's waiting entry and its live rank.
func (s *QueueService) Position(ctx context.Context, patientID string) (*domain.QueueEntry, int, error) {
	const op = "service.queue.position"

	entry, err := s.queue.FindWaitingByPatient(ctx, patientID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	rank, err := s.queue.Rank(ctx, entry)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return entry, rank, nil
}

func (s *QueueService) Waiting(ctx context.Context) ([]*domain.QueueEntry, error) {
	const op = "service.queue.waiting"

	entries, err := s.queue.ListWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

func (s *QueueService) Next(ctx context.Context) (*domain.QueueEntry, error) {
	const op = "service.queue.next"

	entry, err := s.queue.NextWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entry, nil
}
