package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) (*relay.Hub, string) {
	t.Helper()
	hub := relay.NewHub(config.RelayConfig{SendBuffer: 32}, quietLog())
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		hub.Serve(context.Background(), ws, q.Get("user_id"), domain.Role(q.Get("role")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv.URL
}

func connect(t *testing.T, hub *relay.Hub, server, identity string, role domain.Role) *Transport {
	t.Helper()
	endpoint, err := URL(server, identity, role)
	require.NoError(t, err)
	tr, err := Dial(context.Background(), endpoint, identity, role, quietLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	require.Eventually(t, func() bool { return hub.Online(identity) }, time.Second, 5*time.Millisecond)
	return tr
}

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) at(i int) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}

func TestURL(t *testing.T) {
	u, err := URL("https://api.example.com/", "P 1", domain.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/ws?role=patient&user_id=P+1", u)

	_, err = URL("ftp://x", "P1", domain.RolePatient)
	assert.Error(t, err)
}

func TestEmitToPreservesOrder(t *testing.T) {
	hub, server := startRelay(t)
	doc := connect(t, hub, server, "D1", domain.RoleDoctor)
	pat := connect(t, hub, server, "P1", domain.RolePatient)

	var got collector
	pat.On(domain.EventWebRTCSignal, got.handle)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, doc.EmitTo(ctx, "P1", domain.EventWebRTCSignal, map[string]int{"n": i}))
	}

	require.Eventually(t, func() bool { return got.len() == 10 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		var p map[string]int
		require.NoError(t, got.at(i).Decode(&p))
		assert.Equal(t, i, p["n"])
		assert.Equal(t, "D1", got.at(i).From)
	}
}

func TestOnIsAdditiveAndCancellable(t *testing.T) {
	hub, server := startRelay(t)
	doc := connect(t, hub, server, "D1", domain.RoleDoctor)
	pat := connect(t, hub, server, "P1", domain.RolePatient)

	var first, second collector
	cancelFirst := pat.On(domain.EventCallEnded, first.handle)
	pat.On(domain.EventCallEnded, second.handle)

	ctx := context.Background()
	require.NoError(t, doc.EmitTo(ctx, "P1", domain.EventCallEnded, nil))
	require.Eventually(t, func() bool { return first.len() == 1 && second.len() == 1 }, time.Second, 5*time.Millisecond)

	cancelFirst()
	cancelFirst()
	require.NoError(t, doc.EmitTo(ctx, "P1", domain.EventCallEnded, nil))
	require.Eventually(t, func() bool { return second.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, first.len())

	pat.Off(domain.EventCallEnded)
	require.NoError(t, doc.EmitTo(ctx, "P1", domain.EventCallEnded, nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, second.len())
}

func TestCloseDisconnects(t *testing.T) {
	hub, server := startRelay(t)
	pat := connect(t, hub, server, "P1", domain.RolePatient)

	require.NoError(t, pat.Close())
	assert.False(t, pat.Connected())
	assert.ErrorIs(t, pat.EmitTo(context.Background(), "D1", "x", nil), ErrNotConnected)

	select {
	case <-pat.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop")
	}
	require.Eventually(t, func() bool { return !hub.Online("P1") }, time.Second, 5*time.Millisecond)
}
