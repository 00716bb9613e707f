package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/immxrtalbeast/telemed/internal/rtc/signaling"
	"github.com/pion/webrtc/v4"
)

type fakeFactory struct {
	unsupported bool
	autoConnect bool
	candidates  int

	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakeFactory) Supported() bool { return !f.unsupported }

func (f *fakeFactory) NewPeer(PeerConfig) (PeerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{id: len(f.peers) + 1, factory: f, ice: webrtc.ICEConnectionStateNew}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func (f *fakeFactory) all() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.peers...)
}

// fakePeer connects on its own once both descriptions are set and autoConnect is on.
type fakePeer struct {
	id      int
	factory *fakeFactory

	mu      sync.Mutex
	local   *webrtc.SessionDescription
	remote  *webrtc.SessionDescription
	applied []webrtc.ICECandidateInit
	tracks  int
	ice     webrtc.ICEConnectionState
	closed  bool
	onCand  func(webrtc.ICECandidateInit)
	onICE   func(webrtc.ICEConnectionState)
	onTrack func(RemoteTrack)
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *fakePeer) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	return p.setLocal(webrtc.SDPTypeOffer)
}

func (p *fakePeer) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	hasRemote := p.remote != nil
	p.mu.Unlock()
	if !hasRemote {
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	return p.setLocal(webrtc.SDPTypeAnswer)
}

func (p *fakePeer) setLocal(typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return webrtc.SessionDescription{}, errors.New("peer closed")
	}
	desc := webrtc.SessionDescription{Type: typ, SDP: fmt.Sprintf("%s-%d", typ, p.id)}
	p.local = &desc
	onCand := p.onCand
	p.mu.Unlock()

	if onCand != nil && p.factory.candidates > 0 {
		go func() {
			for i := 0; i < p.factory.candidates; i++ {
				onCand(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d-%d", p.id, i)})
			}
		}()
	}
	p.maybeConnect()
	return desc, nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("peer closed")
	}
	p.remote = &desc
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePeer) maybeConnect() {
	p.mu.Lock()
	ready := p.factory.autoConnect && p.local != nil && p.remote != nil && !p.closed
	p.mu.Unlock()
	if !ready {
		return
	}
	go func() {
		p.SetICE(webrtc.ICEConnectionStateChecking)
		p.SetICE(webrtc.ICEConnectionStateConnected)
		p.mu.Lock()
		onTrack := p.onTrack
		p.mu.Unlock()
		if onTrack != nil {
			onTrack(RemoteTrack{ID: fmt.Sprintf("video-%d", p.id), StreamID: "remote", Kind: "video"})
		}
	}()
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCand = fn
}

func (p *fakePeer) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *fakePeer) OnTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) ICEConnectionState() webrtc.ICEConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ice
}

func (p *fakePeer) ConnectionState() webrtc.PeerConnectionState {
	switch p.ICEConnectionState() {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return webrtc.PeerConnectionStateConnected
	case webrtc.ICEConnectionStateFailed:
		return webrtc.PeerConnectionStateFailed
	default:
		return webrtc.PeerConnectionStateNew
	}
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.ice = webrtc.ICEConnectionStateClosed
	return nil
}

// SetICE changes state and fires the callback like a real peer would.
func (p *fakePeer) SetICE(s webrtc.ICEConnectionState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.ice = s
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// SetICESilently changes state without a callback, as seen only by polling.
func (p *fakePeer) SetICESilently(s webrtc.ICEConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ice = s
}

func (p *fakePeer) appliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.applied...)
}

func (p *fakePeer) remoteDesc() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// bus is an in-process relay delivering events synchronously.
type bus struct {
	mu      sync.Mutex
	members map[string]*fakeSignaler
}

func newBus() *bus {
	return &bus{members: make(map[string]*fakeSignaler)}
}

func (b *bus) join(identity string) *fakeSignaler {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSignaler{identity: identity, bus: b, handlers: make(map[string]map[int]signaling.Handler)}
	b.members[identity] = s
	return s
}

func (b *bus) get(identity string) *fakeSignaler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[identity]
}

type fakeSignaler struct {
	identity string
	bus      *bus
	down     atomic.Bool

	mu       sync.Mutex
	handlers map[string]map[int]signaling.Handler
	next     int
	sent     []domain.Event
}

func (s *fakeSignaler) EmitTo(ctx context.Context, to, name string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.down.Load() {
		return signaling.ErrNotConnected
	}
	ev, err := domain.NewEvent(name, payload)
	if err != nil {
		return err
	}
	ev.From = s.identity
	ev.To = to

	s.mu.Lock()
	s.sent = append(s.sent, ev)
	s.mu.Unlock()

	if target := s.bus.get(to); target != nil {
		target.deliver(ev)
	}
	return nil
}

func (s *fakeSignaler) On(name string, h signaling.Handler) func() {
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

func (s *fakeSignaler) Connected() bool { return !s.down.Load() }

func (s *fakeSignaler) deliver(ev domain.Event) {
	s.mu.Lock()
	set := s.handlers[ev.Name]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	hs := make([]signaling.Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, set[id])
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (s *fakeSignaler) handlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, set := range s.handlers {
		n += len(set)
	}
	return n
}

func (s *fakeSignaler) sentEvents(name string) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Event
	for _, ev := range s.sent {
		if ev.Name == name {
			res = append(res, ev)
		}
	}
	return res
}

func (s *fakeSignaler) sentSignals(typ domain.SignalType) []domain.SignalEnvelope {
	var res []domain.SignalEnvelope
	for _, ev := range s.sentEvents(domain.EventWebRTCSignal) {
		var env domain.SignalEnvelope
		if err := ev.Decode(&env); err == nil && env.Type == typ {
			res = append(res, env)
		}
	}
	return res
}

func (s *fakeSignaler) send(t *testing.T, to string, env domain.SignalEnvelope) {
	t.Helper()
	if env.SessionID == "" {
		env.SessionID = testSession
	}
	env.Timestamp = time.Now().UTC()
	if err := s.EmitTo(context.Background(), to, domain.EventWebRTCSignal, env); err != nil {
		t.Fatalf("send: %v", err)
	}
}

type recorder struct {
	mu       sync.Mutex
	errs     []*Error
	connects int
	closes   int
	locals   int
	remotes  []RemoteTrack
	progress []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnLocalStream: func(*media.Stream) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.locals++
		},
		OnRemoteStream: func(t RemoteTrack) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.remotes = append(r.remotes, t)
		},
		OnConnect: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connects++
		},
		OnError: func(e *Error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, e)
		},
		OnClose: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closes++
		},
		OnProgress: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, msg)
		},
	}
}

func (r *recorder) errors() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Error(nil), r.errs...)
}

func (r *recorder) counts() (connects, closes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.closes
}

func (r *recorder) remoteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remotes)
}

func (r *recorder) sawProgress(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.progress {
		if p == msg {
			return true
		}
	}
	return false
}

type stubDevices struct {
	err  error
	gate chan struct{}
}

func (d *stubDevices) Supported() bool { return true }

func (d *stubDevices) Probe(context.Context) error { return nil }

func (d *stubDevices) GetUserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return media.SampleDevices{}.GetUserMedia(ctx, c)
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
