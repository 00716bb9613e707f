package converter

import (
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

type UserResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Role      domain.Role       `json:"role"`
	Status    domain.UserStatus `json:"status"`
	Specialty string            `json:"specialty,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type QueueEntryResponse struct {
	ID        string             `json:"id"`
	PatientID string             `json:"patient_id"`
	Type      string             `json:"type"`
	Status    domain.QueueStatus `json:"status"`
	Position  int                `json:"position"`
	CreatedAt time.Time          `json:"created_at"`
}

type ConsultationResponse struct {
	ID              string                    `json:"id"`
	PatientID       string                    `json:"patient_id"`
	DoctorID        string                    `json:"doctor_id"`
	EntryID         string                    `json:"entry_id"`
	Status          domain.ConsultationStatus `json:"status"`
	SessionID       domain.SessionID          `json:"session_id"`
	StartedAt       time.Time                 `json:"started_at"`
	EndedAt         *time.Time                `json:"ended_at,omitempty"`
	DurationSeconds int64                     `json:"duration_seconds"`
}

func UserToApi(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		Specialty: u.Specialty,
		CreatedAt: u.CreatedAt,
	}
}

func UsersToApi(users []*domain.User) []*UserResponse {
	res := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		res = append(res, UserToApi(u))
	}
	return res
}

func QueueEntryToApi(e *domain.QueueEntry) *QueueEntryResponse {
	return &QueueEntryResponse{
		ID:        e.ID,
		PatientID: e.PatientID,
		Type:      e.Type,
		Status:    e.Status,
		Position:  e.Position,
		CreatedAt: e.CreatedAt,
	}
}

// QueueEntriesToApi renders the waiting list with live ranks, which may be
// lower than the positions recorded at join time.
func QueueEntriesToApi(entries []*domain.QueueEntry) []*QueueEntryResponse {
	res := make([]*QueueEntryResponse, 0, len(entries))
	for i, e := range entries {
		item := QueueEntryToApi(e)
		item.Position = i + 1
		res = append(res, item)
	}
	return res
}

func ConsultationToApi(c *domain.Consultation, now time.Time) *ConsultationResponse {
	return &ConsultationResponse{
		ID:              c.ID,
		PatientID:       c.PatientID,
		DoctorID:        c.DoctorID,
		EntryID:         c.EntryID,
		Status:          c.Status,
		SessionID:       c.SessionID(),
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		DurationSeconds: int64(c.Duration(now) / time.Second),
	}
}
