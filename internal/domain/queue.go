package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultConsultationType = "geral"

type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusInService QueueStatus = "in_service"
	QueueStatusFinished  QueueStatus = "finished"
)

// QueueEntry is a patient waiting for a consultation.
// At most one waiting entry exists per patient.
type QueueEntry struct {
	ID        string      `json:"id"`
	PatientID string      `json:"patient_id"`
	Type      string      `json:"type"`
	Status    QueueStatus `json:"status"`
	Position  int         `json:"position"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewQueueEntry(patientID, consultationType string) *QueueEntry {
	if consultationType == "" {
		consultationType = DefaultConsultationType
	}
	return &QueueEntry{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Type:      consultationType,
		Status:    QueueStatusWaiting,
		CreatedAt: time.Now().UTC(),
	}
}
