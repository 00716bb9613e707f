package call

import (
	"context"
	"net"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

type Diagnostics struct {
	Online          bool             `json:"online"`
	PeerExists      bool             `json:"peer_exists"`
	State           State            `json:"state"`
	ConnectionState string           `json:"connection_state"`
	ICEState        string           `json:"ice_state"`
	LocalStream     bool             `json:"local_stream"`
	RemoteStream    bool             `json:"remote_stream"`
	Role            domain.Role      `json:"role"`
	SessionID       domain.SessionID `json:"session_id"`
	RetryCount      int              `json:"retry_count"`
	LastError       string           `json:"last_error,omitempty"`
	At              time.Time        `json:"at"`
}

func (m *Machine) Diagnostics(ctx context.Context) Diagnostics {
	m.mu.Lock()
	d := Diagnostics{
		PeerExists:   m.peer != nil,
		State:        m.state,
		RemoteStream: m.remoteTracks > 0,
		Role:         m.cfg.Role,
		SessionID:    m.cfg.SessionID,
		RetryCount:   m.retries,
		At:           time.Now().UTC(),
	}
	if m.lastErr != nil {
		d.LastError = m.lastErr.Error()
	}
	pc := m.peer
	m.mu.Unlock()

	if pc != nil {
		d.ConnectionState = pc.ConnectionState().String()
		d.ICEState = pc.ICEConnectionState().String()
	}
	if s := m.media.Stream(); s != nil {
		d.LocalStream = s.Live()
	}
	d.Online = m.cfg.Online(ctx)
	return d
}

// NetworkProbe reports whether any non-loopback interface is up and addressed.
func NetworkProbe(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// ReachabilityProbe reports online when addr accepts TCP connections.
func ReachabilityProbe(addr string) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
