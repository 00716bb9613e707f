package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusBusy    UserStatus = "busy"
	UserStatusPaused  UserStatus = "paused"
	UserStatusOffline UserStatus = "offline"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusOnline, UserStatusBusy, UserStatusPaused, UserStatusOffline:
		return true
	}
	return false
}

// User is either a doctor or a patient. Doctor availability lives in Status.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	Status    UserStatus `json:"status"`
	Specialty string     `json:"specialty,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewUser(name string, role Role, specialty string) *User {
	now := time.Now().UTC()
	status := UserStatusOffline
	if role == RolePatient {
		status = UserStatusOnline
	}
	return &User{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		Status:    status,
		Specialty: specialty,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
