package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID("D1", "P1", "S1")
	assert.Equal(t, SessionID("D1-P1-S1"), id)
	assert.NoError(t, id.Verify("D1", "P1", "S1"))
	assert.ErrorIs(t, id.Verify("D1", "P2", "S1"), ErrSessionMismatch)
	assert.ErrorIs(t, id.Verify("", "P1", "S1"), ErrSessionMismatch)
}

func TestConsultationSessionID(t *testing.T) {
	c := NewConsultation("D1", "P1", "E1")
	require.NotEmpty(t, c.ID)
	assert.Equal(t, NewSessionID("D1", "P1", c.ID), c.SessionID())
	assert.Equal(t, ConsultationActive, c.Status)
}

func TestNewQueueEntryDefaultType(t *testing.T) {
	e := NewQueueEntry("P1", "")
	assert.Equal(t, DefaultConsultationType, e.Type)
	assert.Equal(t, QueueStatusWaiting, e.Status)
}

func TestEventRoundTrip(t *testing.T) {
	ev, err := NewEvent(EventQueueEntryTaken, QueueEntryTakenPayload{EntryID: "E1", DoctorID: "D1"})
	require.NoError(t, err)

	var p QueueEntryTakenPayload
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, "E1", p.EntryID)
}
