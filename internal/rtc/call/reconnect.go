package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/telemed/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

// fail handles a failure of the peer identified by gen. OnError fires once per
// failure. Retryable failures within budget tear down only the peer and
// schedule a reconnect; anything else is terminal.
func (m *Machine) fail(gen uint64, err error) {
	const op = "call.machine.fail"
	e := Classify(err)

	m.mu.Lock()
	if m.gen != gen || !m.state.live() {
		m.mu.Unlock()
		return
	}
	m.gen++
	next := m.gen
	cb := m.callbacks
	log := m.log.With(slog.String("op", op), slog.String("kind", string(e.Kind)))

	if e.Retryable() && m.retries < m.cfg.MaxReconnects {
		m.retries++
		attempt := m.retries
		m.state = StateReconnecting
		m.lastErr = e
		pc := m.dropPeerLocked()
		retryCtx, stop := context.WithCancel(m.runCtx)
		m.stopRetry = stop
		m.mu.Unlock()

		if pc != nil {
			_ = pc.Close()
		}
		log.Warn("call failed, reconnecting", slog.Int("attempt", attempt), slog.Int("max", m.cfg.MaxReconnects), sl.Err(e))
		if cb.OnError != nil {
			cb.OnError(e)
		}
		if cb.OnProgress != nil {
			cb.OnProgress(fmt.Sprintf("Connection problem. Reconnecting (attempt %d of %d)...", attempt, m.cfg.MaxReconnects))
		}
		go m.reconnect(retryCtx, next, attempt)
		return
	}

	if e.Retryable() {
		e = e.exhausted()
	}
	m.state = StateFailed
	m.lastErr = e
	res := m.detachLocked()
	m.mu.Unlock()

	res.release(m)
	log.Error("call failed", slog.Int("retries", m.Retries()), sl.Err(e))
	if cb.OnError != nil {
		cb.OnError(e)
	}
}

func (m *Machine) reconnect(ctx context.Context, gen uint64, attempt int) {
	const op = "call.machine.reconnect"
	log := m.log.With(slog.String("op", op), slog.Int("attempt", attempt))

	t := time.NewTimer(m.cfg.ReconnectBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	if err := m.selfTest(ctx); err != nil {
		log.Warn("self-test failed", sl.Err(err))
		m.fail(gen, err)
		return
	}

	log.Info("recreating peer")
	if err := m.connect(gen); err != nil {
		m.fail(gen, err)
	}
}

// selfTest checks connectivity, the relay and the capture devices before a
// reconnect attempt.
func (m *Machine) selfTest(ctx context.Context) error {
	if !m.cfg.Online(ctx) {
		return newError(KindNetworkTimeout, ErrOffline)
	}
	if !m.signaler.Connected() {
		return newError(KindSignalingError, ErrTransportDown)
	}
	if err := m.media.Probe(ctx); err != nil {
		return Classify(err)
	}
	return nil
}

// monitor polls ICE while connected. DegradedPolls consecutive disconnected
// readings count as a network failure.
func (m *Machine) monitor(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	degraded := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.gen != gen || m.state != StateConnected || m.peer == nil {
			m.mu.Unlock()
			return
		}
		pc := m.peer
		m.mu.Unlock()

		switch pc.ICEConnectionState() {
		case webrtc.ICEConnectionStateDisconnected:
			degraded++
			m.log.Debug("connection degraded", slog.Int("polls", degraded))
			if degraded >= m.cfg.DegradedPolls {
				m.fail(gen, newError(KindNetworkTimeout, ErrConnectionLost))
				return
			}
		case webrtc.ICEConnectionStateFailed:
			m.fail(gen, newError(KindICEFailure, ErrICEFailed))
			return
		default:
			degraded = 0
		}
	}
}
