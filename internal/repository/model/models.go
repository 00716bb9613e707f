package model

import (
	"time"
)

type QueueEntry struct {
	ID        string    `gorm:"size:64;primaryKey"`
	PatientID string    `gorm:"size:64;not null;uniqueIndex:idx_queue_waiting_patient,where:status = 'waiting'"`
	Type      string    `gorm:"size:64;not null"`
	Status    string    `gorm:"size:32;not null;index"`
	Position  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}

type User struct {
	ID        string    `gorm:"size:64;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Role      string    `gorm:"size:16;not null;index:idx_users_role_status"`
	Status    string    `gorm:"size:16;not null;index:idx_users_role_status"`
	Specialty string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Consultation struct {
	ID        string     `gorm:"size:64;primaryKey"`
	PatientID string     `gorm:"size:64;not null;index"`
	DoctorID  string     `gorm:"size:64;not null;index"`
	EntryID   string     `gorm:"size:64;not null"`
	Status    string     `gorm:"size:16;not null"`
	StartedAt time.Time  `gorm:"not null"`
	EndedAt   *time.Time
}

func All() []any {
	return []any{&QueueEntry{}, &User{}, &Consultation{}}
}
