package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

const signalWait = 5 * time.Second

// subscribe registers relay handlers for this run. Events are queued and
// handled one at a time by a single worker so that arrival order is kept.
func (m *Machine) subscribe(ctx context.Context, gen uint64) []func() {
	inbox := make(chan domain.Event, inboxSize)
	enqueue := func(ev domain.Event) {
		select {
		case inbox <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-inbox:
				m.dispatch(ctx, ev)
			}
		}
	}()

	return []func(){
		m.signaler.On(domain.EventWebRTCSignal, enqueue),
		m.signaler.On(domain.EventCallEnded, enqueue),
	}
}

// dispatch handles one event queued by the run that owns ctx. Events left
// over from a finished run are dropped.
func (m *Machine) dispatch(ctx context.Context, ev domain.Event) {
	if !m.ownsRun(ctx) {
		m.log.Debug("event from finished run dropped", slog.String("event", ev.Name))
		return
	}
	if ev.From != "" && ev.From != m.cfg.Remote {
		m.log.Debug("event from unexpected peer dropped", slog.String("from", ev.From))
		return
	}

	switch ev.Name {
	case domain.EventCallEnded:
		var p domain.CallEndedPayload
		if err := ev.Decode(&p); err != nil || p.SessionID != m.cfg.SessionID {
			return
		}
		m.log.Info("remote ended the call")
		m.shutdown(false)

	case domain.EventWebRTCSignal:
		var env domain.SignalEnvelope
		if err := ev.Decode(&env); err != nil {
			m.log.Warn("bad signal payload", sl.Err(err))
			return
		}
		if env.SessionID != m.cfg.SessionID {
			m.log.Debug("stale signal dropped",
				slog.String("signal_session", env.SessionID.String()),
				slog.String("type", string(env.Type)),
			)
			return
		}
		m.sigMu.Lock()
		if m.ownsRun(ctx) {
			m.handleSignal(env)
		}
		m.sigMu.Unlock()
	}
}

func (m *Machine) ownsRun(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ctx.Err() == nil && m.runCtx == ctx
}

// connect creates a fresh peer for gen, attaches the local tracks and starts
// negotiating.
func (m *Machine) connect(gen uint64) error {
	m.sigMu.Lock()
	defer m.sigMu.Unlock()
	return m.connectLocked(gen)
}

func (m *Machine) connectLocked(gen uint64) error {
	const op = "call.machine.connect"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if m.gen != gen || !m.state.live() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	pc, err := m.peers.NewPeer(PeerConfig{
		ICEServers:        m.cfg.ICEServers,
		Trickle:           m.cfg.Trickle,
		CandidatePoolSize: m.cfg.CandidatePoolSize,
	})
	if err != nil {
		return newError(KindGeneric, fmt.Errorf("create peer: %w", err))
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { m.onLocalCandidate(gen, c) })
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) { m.onICEState(gen, s) })
	pc.OnTrack(func(t RemoteTrack) { m.onRemoteTrack(gen, t) })

	if stream := m.media.Stream(); stream != nil {
		for _, t := range stream.Tracks() {
			if err := pc.AddTrack(t.Local()); err != nil {
				_ = pc.Close()
				return newError(KindGeneric, fmt.Errorf("add %s track: %w", t.Kind(), err))
			}
		}
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = pc.Close()
		return nil
	}
	m.peer = pc
	m.state = StateNegotiating
	m.timer = time.AfterFunc(m.cfg.ConnectionTimeout, func() {
		m.fail(gen, newError(KindNetworkTimeout, ErrConnectTimeout))
	})
	early := m.early
	m.early = nil
	m.mu.Unlock()

	log.Info("peer created", slog.Duration("timeout", m.cfg.ConnectionTimeout), slog.Bool("trickle", m.cfg.Trickle))
	m.progress("Creating secure connection...")

	if m.Initiator() {
		return m.sendOffer(gen, pc)
	}
	for _, env := range early {
		m.handleSignal(env)
	}
	return nil
}

func (m *Machine) sendOffer(gen uint64, pc PeerConn) error {
	ctx, cancel := m.opContext()
	defer cancel()

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return newError(KindSignalingError, fmt.Errorf("create offer: %w", err))
	}
	if err := m.emitSignal(ctx, domain.SignalOffer, &offer, nil); err != nil {
		return newError(KindSignalingError, fmt.Errorf("send offer: %w", err))
	}
	m.progress("Exchanging connection details...")
	m.markLocalSent(gen)
	return nil
}

// handleSignal applies one envelope for the current session. Caller holds sigMu.
func (m *Machine) handleSignal(env domain.SignalEnvelope) {
	m.mu.Lock()
	gen := m.gen
	pc := m.peer
	state := m.state
	if pc == nil {
		if !m.Initiator() && (state == StateAcquiringMedia || state == StateReconnecting) {
			m.early = append(m.early, env)
		}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	var err error
	switch env.Type {
	case domain.SignalOffer:
		err = m.applyOffer(gen, pc, env)
	case domain.SignalAnswer:
		err = m.applyAnswer(gen, pc, env)
	case domain.SignalICECandidate:
		m.applyCandidate(gen, pc, env)
	default:
		m.log.Warn("unknown signal type", slog.String("type", string(env.Type)))
	}
	if err != nil {
		m.fail(gen, err)
	}
}

func (m *Machine) applyOffer(gen uint64, pc PeerConn, env domain.SignalEnvelope) error {
	if m.Initiator() {
		m.log.Warn("offer received by initiator ignored")
		return nil
	}
	if env.SDP == nil {
		return newError(KindSignalingError, ErrMissingSDP)
	}

	if pc.HasRemoteDescription() {
		// the remote side restarted its peer, so start over with ours
		m.log.Info("new offer on negotiated peer, recreating")
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return nil
		}
		m.gen++
		next := m.gen
		old := m.dropPeerLocked()
		m.state = StateNegotiating
		m.early = append(m.early, env)
		m.mu.Unlock()
		_ = old.Close()
		return m.connectLocked(next)
	}

	if err := pc.SetRemoteDescription(*env.SDP); err != nil {
		return newError(KindSignalingError, fmt.Errorf("apply offer: %w", err))
	}
	m.flushRemote(gen, pc)

	ctx, cancel := m.opContext()
	defer cancel()

	answer, err := pc.CreateAnswer(ctx)
	if err != nil {
		return newError(KindSignalingError, fmt.Errorf("create answer: %w", err))
	}
	if err := m.emitSignal(ctx, domain.SignalAnswer, &answer, nil); err != nil {
		return newError(KindSignalingError, fmt.Errorf("send answer: %w", err))
	}
	m.markLocalSent(gen)
	return nil
}

func (m *Machine) applyAnswer(gen uint64, pc PeerConn, env domain.SignalEnvelope) error {
	if !m.Initiator() {
		m.log.Warn("answer received by responder ignored")
		return nil
	}
	if env.SDP == nil {
		return newError(KindSignalingError, ErrMissingSDP)
	}
	if pc.HasRemoteDescription() {
		m.log.Debug("duplicate answer ignored")
		return nil
	}
	if err := pc.SetRemoteDescription(*env.SDP); err != nil {
		return newError(KindSignalingError, fmt.Errorf("apply answer: %w", err))
	}
	m.flushRemote(gen, pc)
	return nil
}

// applyCandidate adds the candidate now if the remote description is known,
// otherwise keeps it until flushRemote.
func (m *Machine) applyCandidate(gen uint64, pc PeerConn, env domain.SignalEnvelope) {
	if env.Candidate == nil {
		return
	}
	if !pc.HasRemoteDescription() {
		m.mu.Lock()
		if m.gen == gen {
			m.pendingRemote = append(m.pendingRemote, *env.Candidate)
		}
		m.mu.Unlock()
		return
	}
	if err := pc.AddICECandidate(*env.Candidate); err != nil {
		m.log.Warn("remote candidate rejected", sl.Err(err))
	}
}

// flushRemote applies buffered remote candidates once, in arrival order.
func (m *Machine) flushRemote(gen uint64, pc PeerConn) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	pending := m.pendingRemote
	m.pendingRemote = nil
	m.mu.Unlock()

	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			m.log.Warn("buffered candidate rejected", sl.Err(err))
		}
	}
	if len(pending) > 0 {
		m.log.Debug("buffered candidates applied", slog.Int("count", len(pending)))
	}
}

func (m *Machine) onLocalCandidate(gen uint64, c webrtc.ICECandidateInit) {
	if !m.cfg.Trickle {
		return
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	if !m.localSent {
		m.pendingLocal = append(m.pendingLocal, c)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := m.opContext()
	defer cancel()
	if err := m.emitSignal(ctx, domain.SignalICECandidate, nil, &c); err != nil {
		m.log.Warn("local candidate not sent", sl.Err(err))
	}
}

// markLocalSent releases local candidates held back until our description went out.
func (m *Machine) markLocalSent(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.localSent = true
	pending := m.pendingLocal
	m.pendingLocal = nil
	m.mu.Unlock()

	if !m.cfg.Trickle {
		return
	}

	ctx, cancel := m.opContext()
	defer cancel()
	for i := range pending {
		if err := m.emitSignal(ctx, domain.SignalICECandidate, nil, &pending[i]); err != nil {
			m.log.Warn("local candidate not sent", sl.Err(err))
		}
	}
}

func (m *Machine) emitSignal(ctx context.Context, typ domain.SignalType, sdp *webrtc.SessionDescription, c *webrtc.ICECandidateInit) error {
	env := domain.SignalEnvelope{
		SessionID: m.cfg.SessionID,
		Type:      typ,
		SDP:       sdp,
		Candidate: c,
		Timestamp: time.Now().UTC(),
	}
	return m.signaler.EmitTo(ctx, m.cfg.Remote, domain.EventWebRTCSignal, env)
}

func (m *Machine) onICEState(gen uint64, s webrtc.ICEConnectionState) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.log.Debug("ice state", slog.String("state", s.String()))

	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if m.state != StateNegotiating {
			m.mu.Unlock()
			return
		}
		m.state = StateConnected
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		monCtx, stop := context.WithCancel(m.runCtx)
		m.stopMonitor = stop
		cb := m.callbacks
		m.mu.Unlock()

		go m.monitor(monCtx, gen)
		m.log.Info("call connected")
		if cb.OnProgress != nil {
			cb.OnProgress("Connected")
		}
		if cb.OnConnect != nil {
			cb.OnConnect()
		}

	case webrtc.ICEConnectionStateFailed:
		m.mu.Unlock()
		m.fail(gen, newError(KindICEFailure, ErrICEFailed))

	default:
		m.mu.Unlock()
	}
}

func (m *Machine) onRemoteTrack(gen uint64, t RemoteTrack) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.remoteTracks++
	cb := m.callbacks
	m.mu.Unlock()

	if cb.OnRemoteStream != nil {
		cb.OnRemoteStream(t)
	}
}

// opContext bounds one negotiation step. It also ends with the call.
func (m *Machine) opContext() (context.Context, context.CancelFunc) {
	m.mu.Lock()
	parent := m.runCtx
	m.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, signalWait+m.cfg.ConnectionTimeout)
}
