// Package hub is a small NDN forwarder for faces connected over websocket.
// It keeps a route table fed by register frames, forwards interests by
// forwarding hint then name with longest-prefix match, remembers pending
// interests until their lifetime runs out and returns data along the
// reverse path.
package hub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("hub: closed")

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 60 * time.Second
	sendQueue           = 64
)

type Config struct {
	Limits       frame.Limits
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limits:       frame.DefaultLimits(),
		WriteTimeout: defaultWriteTimeout,
		PingInterval: defaultPingInterval,
	}
}

type route struct {
	prefix ndn.Name
	count  int
}

type conn struct {
	id     uuid.UUID
	remote string
	wc     *websocket.Conn
	send   chan []byte
	routes map[string]*route
}

type pitEntry struct {
	origin   uuid.UUID
	interest *ndn.Interest
	expires  time.Time
}

// Hub accepts face connections. The zero value is not usable; use New.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	now      func() time.Time

	mu     sync.Mutex
	conns  map[uuid.UUID]*conn
	pit    []*pitEntry
	closed bool
}

func New(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = def.Limits
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Hub{
		cfg:   cfg,
		now:   time.Now,
		conns: make(map[uuid.UUID]*conn),
	}
}

// ServeHTTP upgrades the request and serves the face until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wc, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("hub websocket upgrade failed")
		return
	}
	c := &conn{
		id:     uuid.New(),
		remote: r.RemoteAddr,
		wc:     wc,
		send:   make(chan []byte, sendQueue),
		routes: make(map[string]*route),
	}
	if err := h.signon(c); err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("hub refused face")
		_ = wc.Close()
		return
	}
	go h.write(c)
	err = h.read(c)
	h.signoff(c)
	if err != nil {
		log.Debug().Err(err).Stringer("conn", c.id).Msg("hub connection closed")
	}
}

func (h *Hub) signon(c *conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.conns[c.id] = c
	observability.SetHubConnections(len(h.conns))
	log.Info().Stringer("conn", c.id).Str("remote", c.remote).Msg("hub face connected")
	return nil
}

func (h *Hub) signoff(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.id]; !ok {
		return
	}
	delete(h.conns, c.id)
	close(c.send)
	kept := h.pit[:0]
	for _, e := range h.pit {
		if e.origin != c.id {
			kept = append(kept, e)
		}
	}
	h.pit = kept
	observability.SetHubConnections(len(h.conns))
	log.Info().Stringer("conn", c.id).Int("routes", len(c.routes)).Msg("hub face disconnected")
}

func (h *Hub) read(c *conn) error {
	for {
		op, msg, err := c.wc.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if op != websocket.BinaryMessage {
			continue
		}
		f, err := frame.Unmarshal(msg, h.cfg.Limits)
		if err != nil {
			log.Warn().Err(err).Stringer("conn", c.id).Msg("hub dropped malformed frame")
			observability.RecordHubFrame("malformed", "dropped")
			continue
		}
		h.dispatch(c, f, msg)
	}
}

func (h *Hub) write(c *conn) {
	defer c.wc.Close()
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.wc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				_ = c.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.wc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.wc.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				log.Debug().Err(err).Stringer("conn", c.id).Msg("hub write failed")
				return
			}
		case <-ping.C:
			_ = c.wc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) dispatch(c *conn, f frame.Frame, raw []byte) {
	switch f.Header.Type {
	case frame.TypeRegister, frame.TypeUnregister:
		prefix, err := ndn.DecodeName(f.Payload)
		if err != nil {
			log.Warn().Err(err).Stringer("conn", c.id).Msg("hub dropped malformed route frame")
			return
		}
		h.updateRoute(c, prefix, f.Header.Type == frame.TypeRegister)
	case frame.TypeInterest:
		interest, err := ndn.DecodeInterest(f.Payload)
		if err != nil {
			log.Warn().Err(err).Stringer("conn", c.id).Msg("hub dropped malformed interest")
			return
		}
		h.forwardInterest(c, interest, raw)
	case frame.TypeData:
		data, err := ndn.DecodeData(f.Payload)
		if err != nil {
			log.Warn().Err(err).Stringer("conn", c.id).Msg("hub dropped malformed data")
			return
		}
		h.forwardData(data, raw)
	case frame.TypeNack:
		interest, reason, err := ndn.DecodeNack(f.Payload)
		if err != nil {
			log.Warn().Err(err).Stringer("conn", c.id).Msg("hub dropped malformed nack")
			return
		}
		h.forwardNack(interest, reason, raw)
	default:
		log.Warn().Stringer("type", f.Header.Type).Stringer("conn", c.id).Msg("hub dropped unknown frame")
	}
}

func (h *Hub) updateRoute(c *conn, prefix ndn.Name, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := prefix.String()
	r, ok := c.routes[key]
	switch {
	case add && ok:
		r.count++
	case add:
		c.routes[key] = &route{prefix: prefix, count: 1}
	case ok:
		r.count--
		if r.count <= 0 {
			delete(c.routes, key)
		}
	}
	log.Debug().Stringer("conn", c.id).Stringer("prefix", prefix).Bool("add", add).Msg("hub route update")
}

// lookup returns the connection with the longest route covering name,
// excluding origin. Callers hold h.mu.
func (h *Hub) lookup(origin uuid.UUID, name ndn.Name) *conn {
	var best *conn
	bestLen := -1
	for id, c := range h.conns {
		if id == origin {
			continue
		}
		for _, r := range c.routes {
			if r.prefix.IsPrefixOf(name) && len(r.prefix) > bestLen {
				best, bestLen = c, len(r.prefix)
			}
		}
	}
	return best
}

func (h *Hub) route(origin uuid.UUID, interest *ndn.Interest) *conn {
	for _, hint := range interest.ForwardingHint {
		if c := h.lookup(origin, hint); c != nil {
			return c
		}
	}
	return h.lookup(origin, interest.Name)
}

func (h *Hub) forwardInterest(origin *conn, interest *ndn.Interest, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.expire(now)
	target := h.route(origin.id, interest)
	if target == nil {
		log.Debug().Stringer("name", interest.Name).Stringer("conn", origin.id).Msg("hub no route")
		observability.RecordHubFrame("interest", "no-route")
		h.enqueue(origin, frame.TypeNack, ndn.EncodeNack(interest, ndn.NackNoRoute))
		return
	}
	lifetime := interest.Lifetime
	if lifetime <= 0 {
		lifetime = ndn.DefaultInterestLifetime
	}
	h.pit = append(h.pit, &pitEntry{origin: origin.id, interest: interest, expires: now.Add(lifetime)})
	h.enqueueRaw(target, "interest", raw)
	log.Trace().Stringer("name", interest.Name).Stringer("from", origin.id).Stringer("to", target.id).Msg("hub forwarded interest")
}

// forwardData satisfies every pending interest the data matches, sending at
// most one copy per downstream face.
func (h *Hub) forwardData(data *ndn.Data, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expire(h.now())
	sent := make(map[uuid.UUID]bool)
	kept := h.pit[:0]
	for _, e := range h.pit {
		if !e.interest.Matches(data) {
			kept = append(kept, e)
			continue
		}
		if sent[e.origin] {
			continue
		}
		sent[e.origin] = true
		if c, ok := h.conns[e.origin]; ok {
			h.enqueueRaw(c, "data", raw)
		}
	}
	h.pit = kept
	if len(sent) == 0 {
		observability.RecordHubFrame("data", "unsolicited")
		log.Trace().Stringer("name", data.Name).Msg("hub dropped unsolicited data")
	}
}

func (h *Hub) forwardNack(interest *ndn.Interest, reason ndn.NackReason, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.pit {
		if e.interest.Nonce != interest.Nonce || !e.interest.Name.Equal(interest.Name) {
			continue
		}
		h.pit = append(h.pit[:i], h.pit[i+1:]...)
		if c, ok := h.conns[e.origin]; ok {
			h.enqueueRaw(c, "nack", raw)
		}
		log.Debug().Stringer("name", interest.Name).Stringer("reason", reason).Msg("hub forwarded nack")
		return
	}
	observability.RecordHubFrame("nack", "unsolicited")
}

func (h *Hub) expire(now time.Time) {
	kept := h.pit[:0]
	for _, e := range h.pit {
		if now.Before(e.expires) {
			kept = append(kept, e)
		}
	}
	h.pit = kept
}

func (h *Hub) enqueue(c *conn, t frame.Type, payload []byte) {
	msg, err := frame.Marshal(frame.New(t, 0, payload), h.cfg.Limits)
	if err != nil {
		log.Error().Err(err).Stringer("type", t).Msg("hub marshal frame")
		return
	}
	h.enqueueRaw(c, t.String(), msg)
}

// enqueueRaw never blocks; a full queue drops the frame. Callers hold h.mu.
func (h *Hub) enqueueRaw(c *conn, kind string, msg []byte) {
	select {
	case c.send <- msg:
		observability.RecordHubFrame(kind, "forwarded")
	default:
		observability.RecordHubFrame(kind, "dropped")
		log.Warn().Stringer("conn", c.id).Str("type", kind).Msg("hub send queue full")
	}
}

// HasRoute reports whether some connected face announced exactly prefix.
func (h *Hub) HasRoute(prefix ndn.Name) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		if _, ok := c.routes[prefix.String()]; ok {
			return true
		}
	}
	return false
}

// IDs lists the connected faces.
func (h *Hub) IDs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uuid.UUID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	return out
}

func (h *Hub) Conns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) PendingInterests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expire(h.now())
	return len(h.pit)
}

// Disconnect drops every face; faces may reconnect unless the hub is closed.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		_ = c.wc.Close()
	}
}

// Close drops every face and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Disconnect()
}
