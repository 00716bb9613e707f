package domain

import "errors"

var ErrSessionMismatch = errors.New("session id does not match participants")

// SessionID identifies one call between a doctor and a patient for one consultation record.
type SessionID string

func NewSessionID(doctorID, patientID, recordID string) SessionID {
	return SessionID(doctorID + "-" + patientID + "-" + recordID)
}

func (s SessionID) String() string {
	return string(s)
}

// Verify reports whether s was derived from the given participants and record.
func (s SessionID) Verify(doctorID, patientID, recordID string) error {
	if doctorID == "" || patientID == "" || recordID == "" {
		return ErrSessionMismatch
	}
	if s != NewSessionID(doctorID, patientID, recordID) {
		return ErrSessionMismatch
	}
	return nil
}
