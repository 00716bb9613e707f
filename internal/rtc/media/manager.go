package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

// PeerSupport reports whether peer connections can be created.
type PeerSupport interface {
	Supported() bool
}

// Manager owns the local stream of one call.
type Manager struct {
	devices Devices
	log     *slog.Logger

	mu     sync.Mutex
	stream *Stream
	// bumped by Release so a capture still in flight is not published
	epoch uint64
}

func NewManager(devices Devices, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{devices: devices, log: log.With(slog.String("component", "media"))}
}

func (m *Manager) CheckCapability(peers PeerSupport) bool {
	if m.devices == nil || !m.devices.Supported() {
		return false
	}
	return peers != nil && peers.Supported()
}

// Acquire opens camera and microphone. A stream that is already held is returned as is.
// Failures come back as *Error and are not retried. The lock is not held while
// the devices are opened, so Release and the toggles never wait on a capture.
func (m *Manager) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	const op = "media.manager.acquire"
	log := m.log.With(slog.String("op", op))

	if m.devices == nil || !m.devices.Supported() {
		return nil, &Error{Kind: KindNotSupported, Err: ErrNotSupported}
	}

	m.mu.Lock()
	if m.stream != nil {
		held := m.stream
		m.mu.Unlock()
		return held, nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	stream, err := m.devices.GetUserMedia(ctx, c)
	if err != nil {
		merr := Classify(err)
		log.Warn("media acquisition failed", slog.String("kind", string(merr.Kind)), sl.Err(err))
		return nil, merr
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		stream.Stop()
		log.Debug("media released during acquisition", slog.String("stream_id", stream.ID))
		return nil, &Error{Kind: KindGeneric, Err: ErrReleased}
	}
	if m.stream != nil {
		held := m.stream
		m.mu.Unlock()
		stream.Stop()
		return held, nil
	}
	m.stream = stream
	m.mu.Unlock()

	log.Info("media acquired",
		slog.String("stream_id", stream.ID),
		slog.Int("audio", len(stream.AudioTracks())),
		slog.Int("video", len(stream.VideoTracks())),
	)
	return stream, nil
}

func (m *Manager) Stream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

func (m *Manager) ToggleAudio() bool { return m.toggle(KindAudio) }

func (m *Manager) ToggleVideo() bool { return m.toggle(KindVideo) }

// Release stops every local track. Safe to call repeatedly.
func (m *Manager) Release() {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.epoch++
	m.mu.Unlock()

	if stream == nil {
		return
	}
	stream.Stop()
	m.log.Debug("media released", slog.String("stream_id", stream.ID))
}

func (m *Manager) Probe(ctx context.Context) error {
	if m.devices == nil {
		return ErrNotSupported
	}
	return m.devices.Probe(ctx)
}

func (m *Manager) toggle(k Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return false
	}
	tracks := m.stream.byKind(k)
	if len(tracks) == 0 {
		return false
	}
	next := !tracks[0].Enabled()
	tracks[0].SetEnabled(next)
	return next
}
