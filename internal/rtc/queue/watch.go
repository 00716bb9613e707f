// Package queue subscribes a client to the real-time queue events of its role.
package queue

import (
	"log/slog"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

type Subscriber interface {
	On(name string, h signaling.Handler) func()
}

// Handlers left nil are not subscribed.
type Handlers struct {
	// doctor side
	OnNewEntry   func(domain.QueueEntry)
	OnEntryTaken func(domain.QueueEntryTakenPayload)

	// patient side
	OnStatus func(domain.ConsultationStatusPayload)
}

// Watch subscribes identity to the queue events of its role. Doctors get new
// entries and entries taken by colleagues, patients get decisions about their
// own consultation. The returned func removes every subscription.
func Watch(sub Subscriber, role domain.Role, identity string, h Handlers, log *slog.Logger) func() {
	const op = "rtc.queue.watch"
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("op", op), slog.String("identity", identity))

	var unsubs []func()
	switch role {
	case domain.RoleDoctor:
		if h.OnNewEntry != nil {
			unsubs = append(unsubs, sub.On(domain.EventNewQueueEntry, func(ev domain.Event) {
				var p domain.NewQueueEntryPayload
				if err := ev.Decode(&p); err != nil {
					log.Warn("bad new_queue_entry payload", sl.Err(err))
					return
				}
				h.OnNewEntry(p.Entry)
			}))
		}
		if h.OnEntryTaken != nil {
			unsubs = append(unsubs, sub.On(domain.EventQueueEntryTaken, func(ev domain.Event) {
				var p domain.QueueEntryTakenPayload
				if err := ev.Decode(&p); err != nil {
					log.Warn("bad queue_entry_taken payload", sl.Err(err))
					return
				}
				// our own accept is reported through the API response
				if p.DoctorID == identity {
					return
				}
				h.OnEntryTaken(p)
			}))
		}

	case domain.RolePatient:
		if h.OnStatus != nil {
			unsubs = append(unsubs, sub.On(domain.EventConsultationStatus, func(ev domain.Event) {
				var p domain.ConsultationStatusPayload
				if err := ev.Decode(&p); err != nil {
					log.Warn("bad consultation_status payload", sl.Err(err))
					return
				}
				if p.PatientID != "" && p.PatientID != identity {
					log.Debug("status for another patient dropped", slog.String("patient_id", p.PatientID))
					return
				}
				h.OnStatus(p)
			}))
		}

	default:
		log.Warn("unknown role, nothing to watch", slog.String("role", string(role)))
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
