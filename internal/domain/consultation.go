package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConsultationStatus string

const (
	ConsultationActive   ConsultationStatus = "active"
	ConsultationFinished ConsultationStatus = "finished"
)

// Consultation is the record created when a doctor accepts a queued patient.
type Consultation struct {
	ID        string             `json:"id"`
	PatientID string             `json:"patient_id"`
	DoctorID  string             `json:"doctor_id"`
	EntryID   string             `json:"entry_id"`
	Status    ConsultationStatus `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

func NewConsultation(doctorID, patientID, entryID string) *Consultation {
	return &Consultation{
		ID:        uuid.NewString(),
		PatientID: patientID,
		DoctorID:  doctorID,
		EntryID:   entryID,
		Status:    ConsultationActive,
		StartedAt: time.Now().UTC(),
	}
}

func (c *Consultation) SessionID() SessionID {
	return NewSessionID(c.DoctorID, c.PatientID, c.ID)
}

// Duration is the elapsed call time, up to now for active records.
func (c *Consultation) Duration(now time.Time) time.Duration {
	if c.EndedAt != nil {
		return c.EndedAt.Sub(c.StartedAt)
	}
	return now.Sub(c.StartedAt)
}
