package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/immxrtalbeast/telemed/internal/client"
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/call"
	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/immxrtalbeast/telemed/internal/rtc/queue"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

const apiTimeout = 10 * time.Second

// session is an accepted consultation both sides start a call for.
type session struct {
	id       domain.SessionID
	recordID string
	remote   string
}

type agent struct {
	cfg  *config.Config
	opts options
	log  *slog.Logger

	api       *client.Client
	user      *domain.User
	transport *signaling.Transport
	peers     *call.PionFactory
}

func newAgent(ctx context.Context, cfg *config.Config, opts options, log *slog.Logger) (*agent, error) {
	const op = "client.agent.new"

	role := domain.Role(opts.role)
	if !role.Valid() {
		return nil, fmt.Errorf("%s: unknown role %q", op, opts.role)
	}

	api := client.New(opts.server, nil)
	reqCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	user, err := api.CreateUser(reqCtx, opts.name, role, opts.specialty)
	if err != nil {
		return nil, fmt.Errorf("%s: register: %w", op, err)
	}
	log = log.With(slog.String("user_id", user.ID), slog.String("role", string(role)))
	log.Info("registered", slog.String("name", user.Name))

	endpoint, err := signaling.URL(opts.server, user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	transport, err := signaling.Dial(ctx, endpoint, user.ID, role, log)
	if err != nil {
		return nil, fmt.Errorf("%s: relay: %w", op, err)
	}

	peers, err := call.NewPionFactory(log)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &agent{
		cfg:       cfg,
		opts:      opts,
		log:       log,
		api:       api,
		user:      user,
		transport: transport,
		peers:     peers,
	}, nil
}

func (a *agent) close() {
	if err := a.transport.Close(); err != nil {
		a.log.Debug("relay close", sl.Err(err))
	}
}

func (a *agent) run(ctx context.Context) error {
	var (
		s   session
		err error
	)
	if a.user.Role == domain.RoleDoctor {
		s, err = a.waitAsDoctor(ctx)
	} else {
		s, err = a.waitAsPatient(ctx)
	}
	if err != nil {
		return err
	}
	return a.runCall(ctx, s)
}

// waitAsDoctor goes online and accepts the first queue entry it wins.
func (a *agent) waitAsDoctor(ctx context.Context) (session, error) {
	entries := make(chan domain.QueueEntry, 16)
	cancel := queue.Watch(a.transport, domain.RoleDoctor, a.user.ID, queue.Handlers{
		OnNewEntry: func(e domain.QueueEntry) {
			select {
			case entries <- e:
			default:
			}
		},
		OnEntryTaken: func(p domain.QueueEntryTakenPayload) {
			a.log.Info("entry taken by another doctor", slog.String("entry_id", p.EntryID), slog.String("doctor_id", p.DoctorID))
		},
	}, a.log)
	defer cancel()

	if err := a.withTimeout(ctx, func(ctx context.Context) error {
		return a.api.SetStatus(ctx, a.user.ID, domain.UserStatusOnline)
	}); err != nil {
		return session{}, err
	}
	a.log.Info("online, waiting for patients")

	// patients who queued before we connected
	if e, err := a.next(ctx); err == nil {
		entries <- *e
	}

	for {
		select {
		case <-ctx.Done():
			return session{}, ctx.Err()
		case e := <-entries:
			var (
				record *domain.Consultation
				id     domain.SessionID
			)
			err := a.withTimeout(ctx, func(ctx context.Context) (err error) {
				record, id, err = a.api.Accept(ctx, a.user.ID, e.PatientID, e.ID)
				return err
			})
			if client.IsStatus(err, http.StatusConflict) || client.IsStatus(err, http.StatusNotFound) {
				a.log.Info("entry no longer available", slog.String("entry_id", e.ID))
				continue
			}
			if err != nil {
				return session{}, err
			}
			a.log.Info("consultation accepted", slog.String("record_id", record.ID), slog.String("session_id", id.String()))
			return session{id: id, recordID: record.ID, remote: e.PatientID}, nil
		}
	}
}

func (a *agent) next(ctx context.Context) (*domain.QueueEntry, error) {
	var e *domain.QueueEntry
	err := a.withTimeout(ctx, func(ctx context.Context) (err error) {
		e, err = a.api.NextEntry(ctx)
		return err
	})
	return e, err
}

// waitAsPatient joins the queue and waits for a doctor to accept.
func (a *agent) waitAsPatient(ctx context.Context) (session, error) {
	decisions := make(chan domain.ConsultationStatusPayload, 4)
	cancel := queue.Watch(a.transport, domain.RolePatient, a.user.ID, queue.Handlers{
		OnStatus: func(p domain.ConsultationStatusPayload) {
			select {
			case decisions <- p:
			default:
			}
		},
	}, a.log)
	defer cancel()

	var entry *domain.QueueEntry
	if err := a.withTimeout(ctx, func(ctx context.Context) (err error) {
		entry, err = a.api.JoinQueue(ctx, a.user.ID, a.opts.consultationType)
		return err
	}); err != nil {
		return session{}, err
	}
	a.log.Info("queued", slog.Int("position", entry.Position), slog.String("type", entry.Type))

	for {
		select {
		case <-ctx.Done():
			leaveCtx, done := context.WithTimeout(context.Background(), apiTimeout)
			if err := a.api.LeaveQueue(leaveCtx, a.user.ID); err != nil {
				a.log.Debug("leave queue", sl.Err(err))
			}
			done()
			return session{}, ctx.Err()
		case p := <-decisions:
			switch p.Status {
			case domain.DecisionAccepted:
				a.log.Info("doctor accepted", slog.String("doctor_id", p.DoctorID), slog.String("session_id", p.SessionID.String()))
				return session{id: p.SessionID, recordID: p.RecordID, remote: p.DoctorID}, nil
			case domain.DecisionRejected:
				a.log.Info("doctor declined, still waiting", slog.String("doctor_id", p.DoctorID))
			}
		}
	}
}

// runCall drives one call until it ends or ctx is done.
func (a *agent) runCall(ctx context.Context, s session) error {
	const op = "client.agent.call"
	log := a.log.With(slog.String("op", op), slog.String("session_id", s.id.String()))

	mcfg := call.ConfigFor(a.cfg.WebRTC, a.user.Role, s.id, s.remote)
	m, err := call.NewMachine(mcfg, a.transport, a.peers, media.NewManager(media.SampleDevices{}, a.log), a.log)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	ended := make(chan struct{})
	var endOnce sync.Once

	m.SetCallbacks(call.Callbacks{
		OnLocalStream: func(stream *media.Stream) {
			go media.Feed(feedCtx, stream, mcfg.Constraints)
		},
		OnRemoteStream: func(t call.RemoteTrack) {
			log.Info("remote track", slog.String("kind", t.Kind), slog.String("track_id", t.ID))
		},
		OnConnect: func() {
			log.Info("call connected")
		},
		OnError: func(e *call.Error) {
			d := m.Diagnostics(ctx)
			log.Warn(e.Message(),
				slog.String("kind", string(e.Kind)),
				slog.String("action", string(e.Action())),
				slog.Int("retries", d.RetryCount),
				slog.String("ice", d.ICEState),
				sl.Err(e),
			)
		},
		OnClose: func() {
			endOnce.Do(func() { close(ended) })
		},
		OnProgress: func(msg string) {
			log.Debug(msg)
		},
	})

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var limit <-chan time.Time
	if a.opts.duration > 0 {
		t := time.NewTimer(a.opts.duration)
		defer t.Stop()
		limit = t.C
	}

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ended:
			log.Info("call ended by remote")
			break wait
		case <-limit:
			log.Info("call duration reached")
			break wait
		case <-poll.C:
			if m.State() == call.StateFailed {
				break wait
			}
		}
	}

	last, failed := m.LastError(), m.State() == call.StateFailed
	m.Finalize()

	if a.user.Role == domain.RoleDoctor && s.recordID != "" {
		finishCtx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		record, err := a.api.Finish(finishCtx, s.recordID, a.user.ID)
		switch {
		case err == nil:
			log.Info("consultation finished", slog.Duration("duration", record.Duration(time.Now())))
		case client.IsStatus(err, http.StatusConflict):
			// already finished
		default:
			log.Warn("failed to finish consultation", sl.Err(err))
		}
	}

	if failed && last != nil {
		return fmt.Errorf("%s: %s: %w", op, last.Message(), last)
	}
	return nil
}

func (a *agent) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	return fn(reqCtx)
}
