// Package signaling is the client side of the relay: a websocket that emits
// and receives named events for one identity.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

var ErrNotConnected = errors.New("signaling: not connected")

const writeWait = 5 * time.Second

// Handler receives events in arrival order on the transport's read goroutine.
type Handler func(ev domain.Event)

type Transport struct {
	ws       *websocket.Conn
	identity string
	role     domain.Role
	log      *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// URL builds the relay endpoint for identity from the HTTP base address of the server.
func URL(server, identity string, role domain.Role) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("signaling: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws"
	q := u.Query()
	q.Set("user_id", identity)
	q.Set("role", string(role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, endpoint, identity string, role domain.Role, log *slog.Logger) (*Transport, error) {
	const op = "signaling.dial"
	if log == nil {
		log = slog.Default()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t := &Transport{
		ws:       ws,
		identity: identity,
		role:     role,
		log:      log.With(slog.String("component", "signaling"), slog.String("identity", identity)),
		handlers: make(map[string]map[uint64]Handler),
		done:     make(chan struct{}),
	}
	t.connected.Store(true)

	go t.readLoop()

	t.log.Info("connected to relay")
	return t, nil
}

func (t *Transport) Identity() string { return t.identity }

func (t *Transport) Role() domain.Role { return t.role }

func (t *Transport) Connected() bool { return t.connected.Load() }

// Done is closed once the connection is gone.
func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) Emit(ctx context.Context, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.Connected() {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.ws.WriteJSON(ev)
}

func (t *Transport) EmitTo(ctx context.Context, to, name string, payload any) error {
	ev, err := domain.NewEvent(name, payload)
	if err != nil {
		return err
	}
	ev.To = to
	return t.Emit(ctx, ev)
}

// On adds h for name and returns a func removing only that handler.
func (t *Transport) On(name string, h Handler) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	set, ok := t.handlers[name]
	if !ok {
		set = make(map[uint64]Handler)
		t.handlers[name] = set
	}
	set[id] = h
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if set, ok := t.handlers[name]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(t.handlers, name)
				}
			}
		})
	}
}

// Off removes every handler for name.
func (t *Transport) Off(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, name)
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		t.writeMu.Lock()
		_ = t.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		err = t.ws.Close()
	})
	return err
}

func (t *Transport) readLoop() {
	defer func() {
		t.connected.Store(false)
		_ = t.ws.Close()
		close(t.done)
	}()

	for {
		var ev domain.Event
		if err := t.ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("relay connection lost", sl.Err(err))
			}
			return
		}
		t.dispatch(ev)
	}
}

func (t *Transport) dispatch(ev domain.Event) {
	t.mu.RLock()
	set := t.handlers[ev.Name]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, set[id])
	}
	t.mu.RUnlock()

	if len(hs) == 0 {
		t.log.Debug("unhandled event", slog.String("event", ev.Name))
		return
	}
	for _, h := range hs {
		h(ev)
	}
}
