package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

// AcceptResult is what a doctor needs to start the call.
type AcceptResult struct {
	Consultation *domain.Consultation
	SessionID    domain.SessionID
}

// Coordinator arbitrates accept/reject/finish between doctors and notifies
// participants over the relay.
type Coordinator struct {
	queue         repository.QueueRepository
	users         repository.UserRepository
	consultations repository.ConsultationRepository
	publisher     Publisher
	log           *slog.Logger
	now           func() time.Time
}

func NewCoordinator(
	queue repository.QueueRepository,
	users repository.UserRepository,
	consultations repository.ConsultationRepository,
	publisher Publisher,
	log *slog.Logger,
) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		queue:         queue,
		users:         users,
		consultations: consultations,
		publisher:     publisher,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PublishNewEntry tells every connected doctor about a queued patient.
// Delivery is best effort.
func (c *Coordinator) PublishNewEntry(ctx context.Context, entry *domain.QueueEntry) {
	const op = "service.coordinator.publish_new_entry"
	log := c.log.With(slog.String("op", op), slog.String("entry_id", entry.ID))

	ev, err := domain.NewEvent(domain.EventNewQueueEntry, domain.NewQueueEntryPayload{Entry: *entry})
	if err != nil {
		log.Error("failed to encode event", sl.Err(err))
		return
	}
	ev.Role = domain.RoleDoctor

	if err := c.publish(ctx, ev); err != nil {
		log.Warn("new entry notification dropped", sl.Err(err))
	}
}

func (c *Coordinator) Accept(ctx context.Context, doctorID, patientID, entryID string) (*AcceptResult, error) {
	const op = "service.coordinator.accept"
	log := c.log.With(
		slog.String("op", op),
		slog.String("doctor_id", doctorID),
		slog.String("patient_id", patientID),
		slog.String("entry_id", entryID),
	)

	if err := c.requireDoctor(ctx, doctorID); err != nil {
		log.Warn("accept refused", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entry, err := c.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if entry.PatientID != patientID {
		return nil, fmt.Errorf("%s: %w", op, ErrEntryMismatch)
	}

	if err := c.queue.CompareAndSetStatus(ctx, entryID, domain.QueueStatusWaiting, domain.QueueStatusInService); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			log.Info("entry already taken")
			return nil, fmt.Errorf("%s: %w", op, ErrEntryTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// rollback must run even if the caller gave up
	rbCtx := context.WithoutCancel(ctx)

	if err := c.users.CompareAndSetStatus(ctx, doctorID, domain.UserStatusOnline, domain.UserStatusBusy); err != nil {
		c.rollbackEntry(rbCtx, log, entryID)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrDoctorUnavailable)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record := domain.NewConsultation(doctorID, patientID, entryID)
	record.StartedAt = c.now()
	if err := c.consultations.Create(ctx, record); err != nil {
		log.Error("failed to create consultation", sl.Err(err))
		c.rollbackDoctor(rbCtx, log, doctorID)
		c.rollbackEntry(rbCtx, log, entryID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessionID := record.SessionID()
	log.Info("consultation accepted",
		slog.String("record_id", record.ID),
		slog.String("session_id", sessionID.String()),
	)

	status := domain.ConsultationStatusPayload{
		Status:    domain.DecisionAccepted,
		DoctorID:  doctorID,
		PatientID: patientID,
		EntryID:   entryID,
		RecordID:  record.ID,
		SessionID: sessionID,
	}
	if err := c.publishTo(rbCtx, domain.EventConsultationStatus, patientID, status); err != nil {
		log.Warn("patient notification dropped", sl.Err(err))
	}

	taken, err := domain.NewEvent(domain.EventQueueEntryTaken, domain.QueueEntryTakenPayload{
		EntryID:  entryID,
		DoctorID: doctorID,
	})
	if err == nil {
		taken.Role = domain.RoleDoctor
		if err := c.publish(rbCtx, taken); err != nil {
			log.Warn("entry taken notification dropped", sl.Err(err))
		}
	}

	return &AcceptResult{Consultation: record, SessionID: sessionID}, nil
}

// Reject informs the patient only; the entry stays waiting for other doctors.
func (c *Coordinator) Reject(ctx context.Context, doctorID, patientID, entryID string) error {
	const op = "service.coordinator.reject"

	if err := c.requireDoctor(ctx, doctorID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := domain.ConsultationStatusPayload{
		Status:    domain.DecisionRejected,
		DoctorID:  doctorID,
		PatientID: patientID,
		EntryID:   entryID,
	}
	if err := c.publishTo(ctx, domain.EventConsultationStatus, patientID, status); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.log.Info("consultation rejected",
		slog.String("op", op),
		slog.String("doctor_id", doctorID),
		slog.String("entry_id", entryID),
	)
	return nil
}

func (c *Coordinator) requireDoctor(ctx context.Context, id string) error {
	user, err := c.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != domain.RoleDoctor {
		return ErrInvalidRole
	}
	return nil
}

// Finish closes the record, frees the doctor and finishes the queue entry.
// An empty doctorID skips the participant check.
func (c *Coordinator) Finish(ctx context.Context, recordID, doctorID string) (*domain.Consultation, error) {
	const op = "service.coordinator.finish"
	log := c.log.With(slog.String("op", op), slog.String("record_id", recordID))

	record, err := c.consultations.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if doctorID != "" && record.DoctorID != doctorID {
		return nil, fmt.Errorf("%s: %w", op, ErrNotParticipant)
	}

	endedAt := c.now()
	if err := c.consultations.Finish(ctx, recordID, endedAt); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyFinished)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	record.Status = domain.ConsultationFinished
	record.EndedAt = &endedAt

	cleanupCtx := context.WithoutCancel(ctx)
	if err := c.users.CompareAndSetStatus(cleanupCtx, record.DoctorID, domain.UserStatusBusy, domain.UserStatusOnline); err != nil {
		log.Warn("doctor status not restored", sl.Err(err))
	}
	if err := c.queue.CompareAndSetStatus(cleanupCtx, record.EntryID, domain.QueueStatusInService, domain.QueueStatusFinished); err != nil {
		log.Warn("queue entry not finished", sl.Err(err))
	}

	status := domain.ConsultationStatusPayload{
		Status:    domain.DecisionFinished,
		DoctorID:  record.DoctorID,
		PatientID: record.PatientID,
		EntryID:   record.EntryID,
		RecordID:  record.ID,
		SessionID: record.SessionID(),
	}
	if err := c.publishTo(cleanupCtx, domain.EventConsultationStatus, record.PatientID, status); err != nil {
		log.Warn("patient notification dropped", sl.Err(err))
	}

	log.Info("consultation finished", slog.Duration("duration", record.Duration(endedAt)))
	return record, nil
}

func (c *Coordinator) GetConsultation(ctx context.Context, id string) (*domain.Consultation, error) {
	const op = "service.coordinator.get"

	record, err := c.consultations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

func (c *Coordinator) rollbackEntry(ctx context.Context, log *slog.Logger, entryID string) {
	if err := c.queue.CompareAndSetStatus(ctx, entryID, domain.QueueStatusInService, domain.QueueStatusWaiting); err != nil {
		log.Error("failed to roll back queue entry", sl.Err(err))
	}
}

func (c *Coordinator) rollbackDoctor(ctx context.Context, log *slog.Logger, doctorID string) {
	if err := c.users.CompareAndSetStatus(ctx, doctorID, domain.UserStatusBusy, domain.UserStatusOnline); err != nil {
		log.Error("failed to roll back doctor status", sl.Err(err))
	}
}

func (c *Coordinator) publishTo(ctx context.Context, name, to string, payload any) error {
	ev, err := domain.NewEvent(name, payload)
	if err != nil {
		return err
	}
	ev.To = to
	return c.publish(ctx, ev)
}

func (c *Coordinator) publish(ctx context.Context, ev domain.Event) error {
	if c.publisher == nil {
		return errors.New("no publisher configured")
	}
	return c.publisher.Publish(ctx, ev)
}
