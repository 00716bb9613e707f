// Package call runs one WebRTC call between a doctor and a patient: media
// acquisition, offer/answer exchange over the relay, ICE, bounded
// reconnection and teardown.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

const (
	inboxSize       = 128
	callEndedWait   = 2 * time.Second
	defaultTimeout  = 15 * time.Second
	defaultBackoff  = 2 * time.Second
	defaultPoll     = 2 * time.Second
	defaultDegraded = 3
)

// Signaler is the relay connection a machine exchanges events over.
type Signaler interface {
	EmitTo(ctx context.Context, to, name string, payload any) error
	On(name string, h signaling.Handler) func()
	Connected() bool
}

// Callbacks are invoked outside of the machine's locks.
type Callbacks struct {
	OnLocalStream  func(*media.Stream)
	OnRemoteStream func(RemoteTrack)
	OnConnect      func()
	OnError        func(*Error)
	OnClose        func()
	OnProgress     func(string)
}

type Config struct {
	Role      domain.Role
	SessionID domain.SessionID
	// Remote is the counterpart's relay identity.
	Remote string

	Constraints       media.Constraints
	ICEServers        []webrtc.ICEServer
	Trickle           bool
	CandidatePoolSize uint8

	ConnectionTimeout time.Duration
	MaxReconnects     int
	ReconnectBackoff  time.Duration
	PollInterval      time.Duration
	DegradedPolls     int

	// Online backs the self-test connectivity check. Defaults to NetworkProbe.
	Online func(ctx context.Context) bool
}

func (c *Config) applyDefaults() {
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = defaultTimeout
	}
	if c.MaxReconnects < 0 {
		c.MaxReconnects = 0
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = defaultBackoff
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPoll
	}
	if c.DegradedPolls <= 0 {
		c.DegradedPolls = defaultDegraded
	}
	if c.Online == nil {
		c.Online = NetworkProbe
	}
}

// Machine is the state machine of a single call session. Build one per call.
type Machine struct {
	cfg      Config
	signaler Signaler
	peers    PeerFactory
	media    *media.Manager
	log      *slog.Logger

	// sigMu orders remote signal handling and local negotiation steps.
	// Gathering waits happen under sigMu, never under mu.
	sigMu sync.Mutex
	// emitMu keeps local candidates in gathering order on the wire.
	emitMu sync.Mutex

	mu            sync.Mutex
	state         State
	gen           uint64
	peer          PeerConn
	pendingRemote []webrtc.ICECandidateInit
	pendingLocal  []webrtc.ICECandidateInit
	localSent     bool
	early         []domain.SignalEnvelope
	remoteTracks  int
	retries       int
	lastErr       *Error
	timer         *time.Timer
	stopMonitor   context.CancelFunc
	stopRetry     context.CancelFunc
	runCtx        context.Context
	stopRun       context.CancelFunc
	unsubs        []func()
	callbacks     Callbacks
}

func NewMachine(cfg Config, signaler Signaler, peers PeerFactory, mm *media.Manager, log *slog.Logger) (*Machine, error) {
	if cfg.Remote == "" {
		return nil, ErrMissingRemote
	}
	if cfg.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("call: invalid role %q", cfg.Role)
	}
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()

	return &Machine{
		cfg:      cfg,
		signaler: signaler,
		peers:    peers,
		media:    mm,
		log: log.With(
			slog.String("component", "call"),
			slog.String("session_id", cfg.SessionID.String()),
			slog.String("role", string(cfg.Role)),
		),
		state: StateIdle,
	}, nil
}

// Initiator reports whether this side sends the offer. Doctors always do.
func (m *Machine) Initiator() bool {
	return m.cfg.Role == domain.RoleDoctor
}

func (m *Machine) SessionID() domain.SessionID { return m.cfg.SessionID }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

func (m *Machine) LastError() *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SetCallbacks replaces the whole callback set.
func (m *Machine) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

func (m *Machine) ToggleAudio() bool { return m.media.ToggleAudio() }

func (m *Machine) ToggleVideo() bool { return m.media.ToggleVideo() }

// Start runs capability check and media acquisition, then creates the peer.
// The doctor side sends an offer right away, the patient side waits for one.
// Media and capability failures are returned and are terminal. Later failures
// go through OnError and the reconnect policy.
func (m *Machine) Start(ctx context.Context) error {
	const op = "call.machine.start"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if !m.state.startable() {
		m.mu.Unlock()
		return ErrCallActive
	}
	// a fresh start gets a fresh reconnect budget
	m.retries = 0
	m.lastErr = nil
	m.early = nil
	m.state = StateAcquiringMedia
	m.gen++
	gen := m.gen
	m.runCtx, m.stopRun = context.WithCancel(context.Background())
	runCtx := m.runCtx
	m.unsubs = m.subscribe(runCtx, gen)
	m.mu.Unlock()

	log.Info("starting call", slog.Bool("initiator", m.Initiator()))
	m.progress("Checking device support...")

	if !m.media.CheckCapability(m.peers) {
		return m.abort(gen, newError(KindBrowserUnsupported, ErrUnsupported))
	}

	m.progress("Accessing camera and microphone...")
	// Finalize cancels a capture that is still waiting on the devices.
	acqCtx, cancel := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(runCtx, cancel)
	stream, err := m.media.Acquire(acqCtx, m.cfg.Constraints)
	stopAfter()
	cancel()
	if err != nil {
		return m.abort(gen, Classify(err))
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.media.Release()
		return ErrCallClosed
	}
	cb := m.callbacks
	m.mu.Unlock()

	if cb.OnLocalStream != nil {
		cb.OnLocalStream(stream)
	}

	if err := m.connect(gen); err != nil {
		m.fail(gen, err)
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state == StateFailed && m.lastErr != nil {
			return m.lastErr
		}
	}
	return nil
}

// Finalize ends the call from any state. The counterpart gets call_ended when
// the call was live. Calling it again is a no-op.
func (m *Machine) Finalize() {
	m.shutdown(true)
}

// abort fails the start attempt without going through the retry policy.
func (m *Machine) abort(gen uint64, e *Error) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return ErrCallClosed
	}
	m.gen++
	m.state = StateFailed
	m.lastErr = e
	res := m.detachLocked()
	cb := m.callbacks
	m.mu.Unlock()

	res.release(m)
	m.log.Warn("call start failed", slog.String("kind", string(e.Kind)), sl.Err(e))
	if cb.OnError != nil {
		cb.OnError(e)
	}
	return e
}

func (m *Machine) shutdown(notify bool) {
	const op = "call.machine.finalize"

	m.mu.Lock()
	prev := m.state
	if prev == StateIdle || prev == StateClosed {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.state = StateClosed
	res := m.detachLocked()
	cb := m.callbacks
	m.mu.Unlock()

	m.progress("Finishing call...")
	res.release(m)

	if notify && prev.live() {
		ctx, cancel := context.WithTimeout(context.Background(), callEndedWait)
		payload := domain.CallEndedPayload{SessionID: m.cfg.SessionID, At: time.Now().UTC()}
		if err := m.signaler.EmitTo(ctx, m.cfg.Remote, domain.EventCallEnded, payload); err != nil {
			m.log.Warn("call_ended not delivered", slog.String("op", op), sl.Err(err))
		}
		cancel()
	}

	m.log.Info("call finalized", slog.String("op", op), slog.String("from", string(prev)), slog.Bool("local", notify))
	if prev.live() && cb.OnClose != nil {
		cb.OnClose()
	}
}

// resources are what detachLocked took away from the machine.
type resources struct {
	peer   PeerConn
	unsubs []func()
	media  bool
}

func (r resources) release(m *Machine) {
	if r.peer != nil {
		if err := r.peer.Close(); err != nil {
			m.log.Debug("peer close", sl.Err(err))
		}
	}
	if r.media {
		m.media.Release()
	}
	for _, unsub := range r.unsubs {
		unsub()
	}
}

// detachLocked stops timers and workers and hands back everything that
// needs closing outside the lock.
func (m *Machine) detachLocked() resources {
	res := resources{peer: m.dropPeerLocked(), unsubs: m.unsubs, media: true}
	m.unsubs = nil
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
	if m.stopRun != nil {
		m.stopRun()
		m.stopRun = nil
	}
	m.early = nil
	return res
}

// dropPeerLocked detaches the current peer and its per-peer state.
func (m *Machine) dropPeerLocked() PeerConn {
	pc := m.peer
	m.peer = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.stopMonitor != nil {
		m.stopMonitor()
		m.stopMonitor = nil
	}
	m.pendingRemote = nil
	m.pendingLocal = nil
	m.localSent = false
	m.remoteTracks = 0
	return pc
}

func (m *Machine) snapshotCallbacks() Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks
}

func (m *Machine) progress(msg string) {
	if cb := m.snapshotCallbacks(); cb.OnProgress != nil {
		cb.OnProgress(msg)
	}
}
