package domain

import (
	"encoding/json"
	"time"
)

// Relay event names.
const (
	EventNewQueueEntry      = "new_queue_entry"
	EventQueueEntryTaken    = "queue_entry_taken"
	EventConsultationStatus = "consultation_status"
	EventWebRTCSignal       = "webrtc_signal"
	EventCallEnded          = "call_ended"
)

// Event is the relay wire frame. From is stamped by the relay, To targets a single
// identity and Role targets every connection of that role.
type Event struct {
	Name    string          `json:"event"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Role    Role            `json:"role,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(name string, payload any) (Event, error) {
	ev := Event{Name: name}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Payload = raw
	return ev, nil
}

func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

type ConsultationDecision string

const (
	DecisionAccepted ConsultationDecision = "accepted"
	DecisionRejected ConsultationDecision = "rejected"
	DecisionFinished ConsultationDecision = "finished"
)

type ConsultationStatusPayload struct {
	Status    ConsultationDecision `json:"status"`
	DoctorID  string               `json:"doctor_id"`
	PatientID string               `json:"patient_id"`
	EntryID   string               `json:"entry_id,omitempty"`
	RecordID  string               `json:"record_id,omitempty"`
	SessionID SessionID            `json:"session_id,omitempty"`
}

type NewQueueEntryPayload struct {
	Entry QueueEntry `json:"entry"`
}

type QueueEntryTakenPayload struct {
	EntryID  string `json:"entry_id"`
	DoctorID string `json:"doctor_id"`
}

type CallEndedPayload struct {
	SessionID SessionID `json:"session_id"`
	At        time.Time `json:"at"`
}
