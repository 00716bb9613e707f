package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

type InMemoryQueueRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.QueueEntry
	order   map[string]uint64
	seq     uint64
}

func NewInMemoryQueueRepository() *InMemoryQueueRepository {
	return &InMemoryQueueRepository{
		entries: make(map[string]*domain.QueueEntry),
		order:   make(map[string]uint64),
	}
}

func (r *InMemoryQueueRepository) Enqueue(ctx context.Context, entry *domain.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	waiting := 0
	for _, e := range r.entries {
		if e.Status != domain.QueueStatusWaiting {
			continue
		}
		if e.PatientID == entry.PatientID {
			return ErrAlreadyQueued
		}
		waiting++
	}

	entry.Status = domain.QueueStatusWaiting
	entry.Position = waiting + 1

	r.seq++
	stored := *entry
	r.entries[entry.ID] = &stored
	r.order[entry.ID] = r.seq
	return nil
}

func (r *InMemoryQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryQueueRepository) FindWaitingByPatient(ctx context.Context, patientID string) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.PatientID == patientID && e.Status == domain.QueueStatusWaiting {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *InMemoryQueueRepository) Rank(ctx context.Context, entry *domain.QueueEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seq, ok := r.order[entry.ID]
	if !ok {
		return 0, ErrEntryNotFound
	}

	rank := 1
	for id, e := range r.entries {
		if e.Status == domain.QueueStatusWaiting && r.order[id] < seq {
			rank++
		}
	}
	return rank, nil
}

func (r *InMemoryQueueRepository) ListWaiting(ctx context.Context) ([]*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.waitingLocked(), nil
}

func (r *InMemoryQueueRepository) NextWaiting(ctx context.Context) (*domain.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	waiting := r.waitingLocked()
	if len(waiting) == 0 {
		return nil, ErrEntryNotFound
	}
	return waiting[0], nil
}

func (r *InMemoryQueueRepository) CountWaiting(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.Status == domain.QueueStatusWaiting {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryQueueRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.QueueStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if e.Status != from {
		return ErrStatusConflict
	}
	e.Status = to
	return nil
}

func (r *InMemoryQueueRepository) DeleteWaiting(ctx context.Context, patientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		if e.PatientID == patientID && e.Status == domain.QueueStatusWaiting {
			delete(r.entries, id)
			delete(r.order, id)
			return nil
		}
	}
	return ErrEntryNotFound
}

func (r *InMemoryQueueRepository) waitingLocked() []*domain.QueueEntry {
	res := make([]*domain.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status == domain.QueueStatusWaiting {
			cp := *e
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return r.order[res[i].ID] < r.order[res[j].ID]
	})
	return res
}

type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return ErrUserExists
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *InMemoryUserRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryUserRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.UserStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.Status != from {
		return ErrStatusConflict
	}
	u.Status = to
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryUserRepository) ListByRoleStatus(ctx context.Context, role domain.Role, status domain.UserStatus) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*domain.User, 0)
	for _, u := range r.users {
		if u.Role == role && u.Status == status {
			cp := *u
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res, nil
}

type InMemoryConsultationRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Consultation
}

func NewInMemoryConsultationRepository() *InMemoryConsultationRepository {
	return &InMemoryConsultationRepository{
		records: make(map[string]*domain.Consultation),
	}
}

func (r *InMemoryConsultationRepository) Create(ctx context.Context, c *domain.Consultation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.records[c.ID] = &cp
	return nil
}

func (r *InMemoryConsultationRepository) GetByID(ctx context.Context, id string) (*domain.Consultation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.records[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryConsultationRepository) Finish(ctx context.Context, id string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.records[id]
	if !ok {
		return ErrConsultationNotFound
	}
	if c.Status != domain.ConsultationActive {
		return ErrStatusConflict
	}
	c.Status = domain.ConsultationFinished
	c.EndedAt = &endedAt
	return nil
}
