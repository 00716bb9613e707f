package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

var ErrNoRecipient = errors.New("relay: recipient not connected")

// Hub relays named events between connected identities. Events addressed with
// To reach that identity, events with Role reach that role, anything else is
// broadcast to everyone except the sender.
type Hub struct {
	cfg config.RelayConfig
	log *slog.Logger

	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

func NewHub(cfg config.RelayConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	return &Hub{
		cfg:   cfg,
		log:   log.With(slog.String("component", "relay")),
		conns: make(map[string]map[*Conn]struct{}),
	}
}

// Serve attaches ws to the hub and blocks until the connection ends or ctx is done.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, identity string, role domain.Role) {
	const op = "relay.hub.serve"
	log := h.log.With(slog.String("op", op), slog.String("identity", identity), slog.String("role", string(role)))

	c := newConn(ws, identity, role, h.cfg.SendBuffer)
	h.register(c)
	log.Info("connection registered", slog.String("conn_id", c.ID))

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		h.unregister(c)
		c.Close()
		log.Info("connection closed", slog.String("conn_id", c.ID))
	}()

	go h.writePump(ctx, c)
	h.readPump(ctx, c)
}

// Publish routes a server-side event. From is left as given.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.route(ev, nil)
}

func (h *Hub) Online(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[identity]) > 0
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*Conn, 0)
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*Conn]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.Identity]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[c.Identity] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.Identity]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.Identity)
	}
}

func (h *Hub) route(ev domain.Event, sender *Conn) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	targets := h.targets(ev, sender)
	if ev.To != "" && len(targets) == 0 {
		return ErrNoRecipient
	}

	for _, c := range targets {
		if err := c.TrySend(frame); err != nil {
			h.log.Warn("frame dropped",
				slog.String("event", ev.Name),
				slog.String("identity", c.Identity),
				sl.Err(err),
			)
		}
	}
	return nil
}

func (h *Hub) targets(ev domain.Event, sender *Conn) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	res := make([]*Conn, 0)
	switch {
	case ev.To != "":
		for c := range h.conns[ev.To] {
			res = append(res, c)
		}
	default:
		for _, set := range h.conns {
			for c := range set {
				if c == sender {
					continue
				}
				if ev.Role != "" && c.Role != ev.Role {
					continue
				}
				res = append(res, c)
			}
		}
	}
	return res
}

func (h *Hub) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("write failed", slog.String("identity", c.Identity), sl.Err(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *Conn) {
	pongWait := h.cfg.PingPeriod * 2
	c.ws.SetReadLimit(h.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read failed", slog.String("identity", c.Identity), sl.Err(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			h.log.Warn("bad frame", slog.String("identity", c.Identity))
			continue
		}
		ev.From = c.Identity

		if err := h.route(ev, c); err != nil {
			h.log.Debug("event not delivered",
				slog.String("event", ev.Name),
				slog.String("to", ev.To),
				sl.Err(err),
			)
		}
	}
}
