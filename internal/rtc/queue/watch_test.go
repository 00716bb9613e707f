package queue

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	mu       sync.Mutex
	next     int
	handlers map[string]map[int]signaling.Handler
}

func newFakeSub() *fakeSub {
	return &fakeSub{handlers: make(map[string]map[int]signaling.Handler)}
}

func (s *fakeSub) On(name string, h signaling.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[int]signaling.Handler)
	}
	s.handlers[name][id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[name], id)
	}
}

func (s *fakeSub) fire(t *testing.T, name string, payload any) {
	t.Helper()
	ev, err := domain.NewEvent(name, payload)
	require.NoError(t, err)
	s.mu.Lock()
	var hs []signaling.Handler
	for _, h := range s.handlers[name] {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (s *fakeSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, set := range s.handlers {
		n += len(set)
	}
	return n
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoctorWatch(t *testing.T) {
	sub := newFakeSub()
	var (
		entries []domain.QueueEntry
		taken   []domain.QueueEntryTakenPayload
		status  int
	)
	cancel := Watch(sub, domain.RoleDoctor, "D1", Handlers{
		OnNewEntry:   func(e domain.QueueEntry) { entries = append(entries, e) },
		OnEntryTaken: func(p domain.QueueEntryTakenPayload) { taken = append(taken, p) },
		OnStatus:     func(domain.ConsultationStatusPayload) { status++ },
	}, quietLog())
	assert.Equal(t, 2, sub.count())

	entry := domain.NewQueueEntry("P1", "")
	sub.fire(t, domain.EventNewQueueEntry, domain.NewQueueEntryPayload{Entry: *entry})
	sub.fire(t, domain.EventQueueEntryTaken, domain.QueueEntryTakenPayload{EntryID: entry.ID, DoctorID: "D2"})
	sub.fire(t, domain.EventQueueEntryTaken, domain.QueueEntryTakenPayload{EntryID: entry.ID, DoctorID: "D1"})
	sub.fire(t, domain.EventConsultationStatus, domain.ConsultationStatusPayload{Status: domain.DecisionAccepted})

	require.Len(t, entries, 1)
	assert.Equal(t, "P1", entries[0].PatientID)
	assert.Equal(t, domain.DefaultConsultationType, entries[0].Type)
	require.Len(t, taken, 1)
	assert.Equal(t, "D2", taken[0].DoctorID)
	assert.Zero(t, status)

	cancel()
	assert.Zero(t, sub.count())
	sub.fire(t, domain.EventNewQueueEntry, domain.NewQueueEntryPayload{Entry: *entry})
	assert.Len(t, entries, 1)
}

func TestPatientWatch(t *testing.T) {
	sub := newFakeSub()
	var got []domain.ConsultationStatusPayload
	cancel := Watch(sub, domain.RolePatient, "P1", Handlers{
		OnNewEntry: func(domain.QueueEntry) { t.Fatal("patient got a queue entry") },
		OnStatus:   func(p domain.ConsultationStatusPayload) { got = append(got, p) },
	}, quietLog())
	defer cancel()

	sub.fire(t, domain.EventNewQueueEntry, domain.NewQueueEntryPayload{})
	sub.fire(t, domain.EventConsultationStatus, domain.ConsultationStatusPayload{
		Status:    domain.DecisionAccepted,
		DoctorID:  "D1",
		PatientID: "P1",
		RecordID:  "S1",
		SessionID: domain.NewSessionID("D1", "P1", "S1"),
	})
	sub.fire(t, domain.EventConsultationStatus, domain.ConsultationStatusPayload{Status: domain.DecisionRejected, PatientID: "P2"})

	require.Len(t, got, 1)
	assert.Equal(t, domain.DecisionAccepted, got[0].Status)
	assert.Equal(t, domain.SessionID("D1-P1-S1"), got[0].SessionID)
}

func TestWatchUnknownRole(t *testing.T) {
	sub := newFakeSub()
	cancel := Watch(sub, "nurse", "N1", Handlers{OnStatus: func(domain.ConsultationStatusPayload) {}}, nil)
	assert.Zero(t, sub.count())
	cancel()
}
