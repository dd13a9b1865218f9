// Package wsface is an ndn.Face carried over a websocket link to a hub.
// Packets travel as binary frames. When the link drops, the face redials with
// backoff and re-announces its routes; interests sent while the link is down
// simply time out.
package wsface

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/protocol/frame"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("wsface: not connected")

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	sendQueue    = 64
)

type Options struct {
	URL     string
	Header  http.Header
	Dialer  *websocket.Dialer
	Backoff session.BackoffConfig
	Limits  frame.Limits
}

type link struct {
	wc   *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

func (l *link) close() { l.once.Do(func() { close(l.stop) }) }

// ClientTLSConfig trusts the PEM certificates in caFile for wss hubs.
func ClientTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("wsface: no certificates in %s", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Face methods must be called from its loop, like every ndn.Face.
type Face struct {
	loop    *ndn.Loop
	opts    Options
	pending *ndn.PendingTable
	filters *ndn.FilterTable
	// prefixes are announced routes without handlers.
	prefixes []ndn.Name
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	rng    *rand.Rand
	seq    atomic.Uint64

	mu   sync.Mutex
	link *link
}

var _ ndn.Face = (*Face)(nil)

// Dial connects to the hub at opts.URL. The first connection attempt is
// synchronous; later reconnects happen in the background until Close.
func Dial(ctx context.Context, loop *ndn.Loop, opts Options) (*Face, error) {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Limits.MaxPayloadBytes == 0 {
		opts.Limits = frame.DefaultLimits()
	}
	if opts.Backoff.InitialDelay <= 0 {
		opts.Backoff = session.DefaultConfig().Backoff
	}
	f := &Face{
		loop:    loop,
		opts:    opts,
		pending: ndn.NewPendingTable(loop),
		filters: ndn.NewFilterTable(),
		done:    make(chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	l, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	go f.run(l)
	return f, nil
}

func (f *Face) connect(ctx context.Context) (*link, error) {
	wc, _, err := f.opts.Dialer.DialContext(ctx, f.opts.URL, f.opts.Header)
	if err != nil {
		return nil, err
	}
	l := &link{wc: wc, send: make(chan []byte, sendQueue), stop: make(chan struct{})}
	go f.write(l)
	f.mu.Lock()
	f.link = l
	f.mu.Unlock()
	log.Info().Str("url", f.opts.URL).Msg("wsface connected")
	return l, nil
}

func (f *Face) run(l *link) {
	defer close(f.done)
	for {
		err := f.read(l)
		f.drop(l)
		if f.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("url", f.opts.URL).Msg("wsface link lost")
		if l = f.reconnect(); l == nil {
			return
		}
		f.loop.Post(f.announce)
	}
}

func (f *Face) reconnect() *link {
	for attempt := 1; ; attempt++ {
		delay := session.NextBackoffDelay(f.opts.Backoff, attempt, f.rng)
		select {
		case <-f.ctx.Done():
			return nil
		case <-time.After(delay):
		}
		l, err := f.connect(f.ctx)
		if err == nil {
			return l
		}
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("wsface redial failed")
	}
}

func (f *Face) drop(l *link) {
	f.mu.Lock()
	if f.link == l {
		f.link = nil
	}
	f.mu.Unlock()
	l.close()
}

func (f *Face) read(l *link) error {
	for {
		op, msg, err := l.wc.ReadMessage()
		if err != nil {
			return err
		}
		if op != websocket.BinaryMessage {
			continue
		}
		fr, err := frame.Unmarshal(msg, f.opts.Limits)
		if err != nil {
			log.Warn().Err(err).Msg("wsface dropped malformed frame")
			continue
		}
		f.loop.Post(func() { f.receive(fr) })
	}
}

func (f *Face) write(l *link) {
	defer l.wc.Close()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case msg := <-l.send:
			_ = l.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.wc.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				log.Debug().Err(err).Msg("wsface write failed")
				return
			}
		case <-ping.C:
			_ = l.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-l.stop:
			_ = l.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = l.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// receive runs on the loop.
func (f *Face) receive(fr frame.Frame) {
	if f.closed {
		return
	}
	switch fr.Header.Type {
	case frame.TypeInterest:
		interest, err := ndn.DecodeInterest(fr.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("wsface dropped malformed interest")
			return
		}
		handler, ok := f.filters.Lookup(interest.Name)
		if !ok {
			log.Debug().Stringer("name", interest.Name).Msg("wsface no filter for interest")
			return
		}
		handler(interest)
	case frame.TypeData:
		data, err := ndn.DecodeData(fr.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("wsface dropped malformed data")
			return
		}
		if f.pending.Satisfy(data) == 0 {
			log.Trace().Stringer("name", data.Name).Msg("wsface unsolicited data")
		}
	case frame.TypeNack:
		interest, reason, err := ndn.DecodeNack(fr.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("wsface dropped malformed nack")
			return
		}
		f.pending.Nack(interest, reason)
	default:
		log.Warn().Stringer("type", fr.Header.Type).Msg("wsface dropped unexpected frame")
	}
}

func (f *Face) send(t frame.Type, payload []byte) error {
	msg, err := frame.Marshal(frame.New(t, f.seq.Add(1), payload), f.opts.Limits)
	if err != nil {
		return err
	}
	f.mu.Lock()
	l := f.link
	f.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	select {
	case l.send <- msg:
		return nil
	case <-l.stop:
		return ErrNotConnected
	default:
		log.Warn().Stringer("type", t).Msg("wsface send queue full")
		return nil
	}
}

// announce re-registers every route on a fresh link.
func (f *Face) announce() {
	if f.closed {
		return
	}
	for _, p := range f.routes() {
		if err := f.send(frame.TypeRegister, p.Encode()); err != nil {
			log.Warn().Err(err).Stringer("prefix", p).Msg("wsface re-announce")
			return
		}
	}
	log.Debug().Int("routes", len(f.routes())).Msg("wsface routes announced")
}

func (f *Face) routes() []ndn.Name {
	return append(append([]ndn.Name(nil), f.prefixes...), f.filters.Prefixes()...)
}

func (f *Face) Loop() *ndn.Loop { return f.loop }

func (f *Face) Express(interest *ndn.Interest, cb ndn.ExpressCallbacks) (*ndn.PendingInterest, error) {
	if f.closed {
		return nil, ndn.ErrFaceClosed
	}
	p := f.pending.Add(interest, cb)
	if err := f.send(frame.TypeInterest, interest.Encode()); err != nil {
		log.Debug().Err(err).Stringer("name", interest.Name).Msg("wsface interest not sent")
	}
	return p, nil
}

func (f *Face) Put(data *ndn.Data) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	return f.send(frame.TypeData, data.Encode())
}

func (f *Face) PutNack(interest *ndn.Interest, reason ndn.NackReason) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	return f.send(frame.TypeNack, ndn.EncodeNack(interest, reason))
}

func (f *Face) SetInterestFilter(prefix ndn.Name, handler ndn.InterestHandler) (ndn.FilterHandle, error) {
	if f.closed {
		return 0, ndn.ErrFaceClosed
	}
	h := f.filters.Add(prefix, handler)
	if err := f.send(frame.TypeRegister, prefix.Encode()); err != nil {
		log.Debug().Err(err).Stringer("prefix", prefix).Msg("wsface filter announced on reconnect")
	}
	return h, nil
}

func (f *Face) UnsetInterestFilter(h ndn.FilterHandle) {
	prefix, ok := f.filters.Prefix(h)
	if !ok {
		return
	}
	f.filters.Remove(h)
	if !f.closed {
		_ = f.send(frame.TypeUnregister, prefix.Encode())
	}
}

func (f *Face) RegisterPrefix(prefix ndn.Name) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	f.prefixes = append(f.prefixes, prefix.Clone())
	if err := f.send(frame.TypeRegister, prefix.Encode()); err != nil {
		log.Debug().Err(err).Stringer("prefix", prefix).Msg("wsface route announced on reconnect")
	}
	return nil
}

// Close cancels pending interests silently, removes every filter and shuts
// the link down. It does not wait for the background goroutines.
func (f *Face) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.pending.CancelAll()
	f.filters.Clear()
	f.prefixes = nil
	f.cancel()
	f.mu.Lock()
	l := f.link
	f.mu.Unlock()
	if l != nil {
		l.close()
	}
	return nil
}

// Done is closed once the face stopped reconnecting.
func (f *Face) Done() <-chan struct{} { return f.done }
