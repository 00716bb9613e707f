package repository

import (
	"context"
	"errors"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/repository/model"
	"gorm.io/gorm"
)

// queueLockKey names the postgres advisory lock that orders joins.
const queueLockKey int64 = 0x7175657565

type GormQueueRepository struct {
	db *gorm.DB
}

func NewGormQueueRepository(db *gorm.DB) *GormQueueRepository {
	return &GormQueueRepository{db: db}
}

func (r *GormQueueRepository) Enqueue(ctx context.Context, entry *domain.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil {
		return errors.New("queue entry is nil")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// count-then-insert must not interleave with another join
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", queueLockKey).Error; err != nil {
				return err
			}
		}

		var existing int64
		if err := tx.Model(&model.QueueEntry{}).
			Where("patient_id = ? AND status = ?", entry.PatientID, domain.QueueStatusWaiting).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyQueued
		}

		var waiting int64
		if err := tx.Model(&model.QueueEntry{}).
			Where("status = ?", domain.QueueStatusWaiting).
			Count(&waiting).Error; err != nil {
			return err
		}

		entry.Status = domain.QueueStatusWaiting
		entry.Position = int(waiting) + 1

		if err := tx.Create(toModelEntry(entry)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyQueued
			}
			return err
		}
		return nil
	})
}

func (r *GormQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var e model.QueueEntry
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return toDomainEntry(&e), nil
}

func (r *GormQueueRepository) FindWaitingByPatient(ctx context.Context, patientID string) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var e model.QueueEntry
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND status = ?", patientID, domain.QueueStatusWaiting).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return toDomainEntry(&e), nil
}

func (r *GormQueueRepository) Rank(ctx context.Context, entry *domain.QueueEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var ahead int64
	err := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("status = ?", domain.QueueStatusWaiting).
		Where("created_at < ? OR (created_at = ? AND id < ?)", entry.CreatedAt, entry.CreatedAt, entry.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func (r *GormQueueRepository) ListWaiting(ctx context.Context) ([]*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.QueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.QueueStatusWaiting).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	res := make([]*domain.QueueEntry, 0, len(rows))
	for i := range rows {
		res = append(res, toDomainEntry(&rows[i]))
	}
	return res, nil
}

func (r *GormQueueRepository) NextWaiting(ctx context.Context) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var e model.QueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.QueueStatusWaiting).
		Order("created_at ASC, id ASC").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return toDomainEntry(&e), nil
}

func (r *GormQueueRepository) CountWaiting(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	err := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("status = ?", domain.QueueStatusWaiting).
		Count(&n).Error
	return int(n), err
}

func (r *GormQueueRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.QueueStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *GormQueueRepository) DeleteWaiting(ctx context.Context, patientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Where("patient_id = ? AND status = ?", patientID, domain.QueueStatusWaiting).
		Delete(&model.QueueEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var u model.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toDomainUser(&u), nil
}

func (r *GormUserRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *GormUserRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *GormUserRepository) ListByRoleStatus(ctx context.Context, role domain.Role, status domain.UserStatus) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND status = ?", role, status).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	res := make([]*domain.User, 0, len(rows))
	for i := range rows {
		res = append(res, toDomainUser(&rows[i]))
	}
	return res, nil
}

type GormConsultationRepository struct {
	db *gorm.DB
}

func NewGormConsultationRepository(db *gorm.DB) *GormConsultationRepository {
	return &GormConsultationRepository{db: db}
}

func (r *GormConsultationRepository) Create(ctx context.Context, c *domain.Consultation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		return errors.New("consultation is nil")
	}
	return r.db.WithContext(ctx).Create(toModelConsultation(c)).Error
}

func (r *GormConsultationRepository) GetByID(ctx context.Context, id string) (*domain.Consultation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var c model.Consultation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}
	return toDomainConsultation(&c), nil
}

func (r *GormConsultationRepository) Finish(ctx context.Context, id string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Consultation{}).
		Where("id = ? AND status = ?", id, domain.ConsultationActive).
		Updates(map[string]any{"status": string(domain.ConsultationFinished), "ended_at": endedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func toModelEntry(e *domain.QueueEntry) *model.QueueEntry {
	return &model.QueueEntry{
		ID:        e.ID,
		PatientID: e.PatientID,
		Type:      e.Type,
		Status:    string(e.Status),
		Position:  e.Position,
		CreatedAt: e.CreatedAt,
	}
}

func toDomainEntry(e *model.QueueEntry) *domain.QueueEntry {
	return &domain.QueueEntry{
		ID:        e.ID,
		PatientID: e.PatientID,
		Type:      e.Type,
		Status:    domain.QueueStatus(e.Status),
		Position:  e.Position,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func toModelUser(u *domain.User) *model.User {
	return &model.User{
		ID:        u.ID,
		Name:      u.Name,
		Role:      string(u.Role),
		Status:    string(u.Status),
		Specialty: u.Specialty,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toDomainUser(u *model.User) *domain.User {
	return &domain.User{
		ID:        u.ID,
		Name:      u.Name,
		Role:      domain.Role(u.Role),
		Status:    domain.UserStatus(u.Status),
		Specialty: u.Specialty,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toModelConsultation(c *domain.Consultation) *model.Consultation {
	return &model.Consultation{
		ID:        c.ID,
		PatientID: c.PatientID,
		DoctorID:  c.DoctorID,
		EntryID:   c.EntryID,
		Status:    string(c.Status),
		StartedAt: c.StartedAt,
		EndedAt:   c.EndedAt,
	}
}

func toDomainConsultation(c *model.Consultation) *domain.Consultation {
	return &domain.Consultation{
		ID:        c.ID,
		PatientID: c.PatientID,
		DoctorID:  c.DoctorID,
		EntryID:   c.EntryID,
		Status:    domain.ConsultationStatus(c.Status),
		StartedAt: c.StartedAt,
		EndedAt:   c.EndedAt,
	}
}
