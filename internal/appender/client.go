package appender

import (
	"errors"
	"math/rand"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/rs/zerolog/log"
)

var ErrClientClosed = errors.New("appender: client closed")

// ClientConfig describes the holder.
type ClientConfig struct {
	// Prefix is where the holder serves command and bundle fetches.
	Prefix ndn.Name
	// ForwardingHint, when set, is how the ledger reaches Prefix.
	ForwardingHint ndn.Name
	Signing        security.SigningInfo
	Session        session.Config
}

type pendingAppend struct {
	nonce    uint64
	topic    ndn.Name
	command  ndn.Name
	payloads []*ndn.Data
	phase    Phase
	retry    session.RetryCounter
	notify   *ndn.PendingInterest
	bundle   ndn.FilterHandle
	serving  bool
	cb       Callbacks
}

// Client is the holder side. Methods run on the face's loop.
type Client struct {
	face      ndn.Face
	signer    security.Signer
	validator security.Validator
	cfg       ClientConfig
	pending   *session.Registry[uint64, *pendingAppend]
	msg       ndn.FilterHandle
	closed    bool
	nonce     func() uint64
}

// NewClient installs the pull endpoint at <prefix>/msg.
func NewClient(face ndn.Face, signer security.Signer, validator security.Validator, cfg ClientConfig) (*Client, error) {
	if len(cfg.Prefix) == 0 {
		return nil, protocol.Errorf(protocol.KindInvalidArgument, "appender: empty holder prefix")
	}
	cfg.Session = cfg.Session.WithDefaults()
	c := &Client{
		face:      face,
		signer:    signer,
		validator: validator,
		cfg:       cfg,
		pending:   session.NewRegistry[uint64, *pendingAppend](),
		nonce:     rand.Uint64,
	}
	h, err := face.SetInterestFilter(naming.MsgPrefix(cfg.Prefix), c.onFetch)
	if err != nil {
		return nil, err
	}
	c.msg = h
	return c, nil
}

// Append notifies topic that payloads are ready and returns the exchange nonce.
func (c *Client) Append(topic ndn.Name, payloads []*ndn.Data, cb Callbacks) (uint64, error) {
	if c.closed {
		return 0, ErrClientClosed
	}
	if len(topic) == 0 {
		return 0, protocol.Errorf(protocol.KindInvalidArgument, "appender: empty topic")
	}
	if len(payloads) == 0 {
		return 0, protocol.Errorf(protocol.KindInvalidArgument, "appender: no payloads")
	}
	for i, p := range payloads {
		if p == nil {
			return 0, protocol.Errorf(protocol.KindInvalidArgument, "appender: payload %d is nil", i)
		}
	}

	nonce := c.nonce()
	for c.pending.Contains(nonce) {
		nonce = c.nonce()
	}
	params, err := protocol.EncodeAppendParameters(protocol.AppendParameters{
		HolderPrefix:   c.cfg.Prefix,
		ForwardingHint: c.cfg.ForwardingHint,
		Nonce:          nonce,
	})
	if err != nil {
		return 0, err
	}
	e := &pendingAppend{
		nonce:    nonce,
		topic:    topic.Clone(),
		command:  naming.CommandName(c.cfg.Prefix, topic, nonce),
		payloads: append([]*ndn.Data(nil), payloads...),
		phase:    PhaseIdle,
		retry:    session.RetryCounter{Max: c.cfg.Session.HolderMaxRetries},
		cb:       cb,
	}
	if err := c.pending.Insert(nonce, e); err != nil {
		return 0, err
	}

	interest := ndn.NewInterest(naming.NotifyName(topic))
	interest.MustBeFresh = true
	interest.Lifetime = c.cfg.Session.InterestLifetime
	interest.SetAppParameters(params)
	if err := c.sendNotify(e, interest); err != nil {
		c.release(c.pending.Take(nonce))
		return 0, err
	}
	log.Debug().Uint64("nonce", nonce).Stringer("topic", topic).Int("payloads", len(payloads)).Msg("appender notify sent")
	return nonce, nil
}

func (c *Client) sendNotify(e *pendingAppend, interest *ndn.Interest) error {
	p, err := c.face.Express(interest, ndn.ExpressCallbacks{
		OnData:    func(_ *ndn.Interest, d *ndn.Data) { c.onAck(e.nonce, d) },
		OnNack:    func(_ *ndn.Interest, r ndn.NackReason) { c.onNotifyNack(e.nonce, r) },
		OnTimeout: func(i *ndn.Interest) { c.onNotifyTimeout(e.nonce, i) },
	})
	if err != nil {
		return err
	}
	e.notify = p
	if e.phase == PhaseIdle {
		e.phase = PhaseNotifySent
	}
	return nil
}

// live returns the entry for nonce unless it was removed or the client closed.
func (c *Client) live(nonce uint64) (*pendingAppend, bool) {
	if c.closed {
		return nil, false
	}
	return c.pending.Get(nonce)
}

func (c *Client) onNotifyTimeout(nonce uint64, interest *ndn.Interest) {
	e, ok := c.live(nonce)
	if !ok {
		return
	}
	if e.retry.Next() {
		retry := interest.Clone()
		retry.RefreshNonce()
		log.Debug().Uint64("nonce", nonce).Int("attempt", e.retry.Count).Msg("appender notify retry")
		observability.RecordAppendRetry("holder")
		if err := c.sendNotify(e, retry); err == nil {
			return
		}
	}
	c.finish(e, PhaseTimedOut)
	log.Warn().Uint64("nonce", nonce).Stringer("topic", e.topic).Msg("appender notify timed out")
	if e.cb.OnTimeout != nil {
		e.cb.OnTimeout(nonce)
	}
}

func (c *Client) onNotifyNack(nonce uint64, reason ndn.NackReason) {
	e, ok := c.live(nonce)
	if !ok {
		return
	}
	c.finish(e, PhaseNacked)
	log.Warn().Uint64("nonce", nonce).Stringer("reason", reason).Msg("appender notify nacked")
	if e.cb.OnNack != nil {
		e.cb.OnNack(nonce, reason)
	}
}

func (c *Client) onAck(nonce uint64, ack *ndn.Data) {
	e, ok := c.live(nonce)
	if !ok {
		return
	}
	if err := c.validator.Validate(ack); err != nil {
		c.finish(e, PhaseValidationFailed)
		log.Warn().Uint64("nonce", nonce).Err(err).Msg("appender ack failed validation")
		if e.cb.OnFailure != nil {
			e.cb.OnFailure(nonce, nil, err)
		}
		return
	}
	statuses, err := protocol.DecodeStatusList(ack.Content)
	if err != nil {
		c.finish(e, PhaseValidationFailed)
		log.Warn().Uint64("nonce", nonce).Err(err).Msg("appender ack unparsable")
		if e.cb.OnFailure != nil {
			e.cb.OnFailure(nonce, nil, err)
		}
		return
	}
	e.retry.Reset()
	c.finish(e, PhaseAcked)
	if protocol.AllSuccess(statuses) {
		log.Debug().Uint64("nonce", nonce).Int("objects", len(statuses)).Msg("appender acked")
		if e.cb.OnSuccess != nil {
			e.cb.OnSuccess(nonce, statuses)
		}
		return
	}
	log.Warn().Uint64("nonce", nonce).Interface("statuses", statuses).Msg("appender ack reports failures")
	if e.cb.OnFailure != nil {
		e.cb.OnFailure(nonce, statuses, nil)
	}
}

// onFetch answers <prefix>/msg/<topic>/<nonce> with the command naming the bundle.
func (c *Client) onFetch(interest *ndn.Interest) {
	if c.closed {
		return
	}
	nonce, err := naming.CommandNonce(interest.Name)
	if err != nil {
		log.Debug().Stringer("name", interest.Name).Msg("appender ignored malformed fetch")
		return
	}
	e, ok := c.pending.Get(nonce)
	if !ok || !e.command.Equal(interest.Name) {
		log.Debug().Uint64("nonce", nonce).Stringer("name", interest.Name).Msg("appender fetch for unknown nonce")
		return
	}
	if e.payloads == nil && !e.serving {
		log.Debug().Uint64("nonce", nonce).Msg("appender bundle already served")
		return
	}

	bundleName := naming.BundleName(e.command)
	content, err := protocol.EncodeAppendCommand(protocol.AppendCommand{
		PayloadName:    bundleName,
		ForwardingHint: c.cfg.ForwardingHint,
	})
	if err != nil {
		log.Error().Err(err).Uint64("nonce", nonce).Msg("appender encode command")
		return
	}
	reply := ndn.NewData(interest.Name, content)
	if err := c.signer.Sign(reply, c.cfg.Signing); err != nil {
		log.Error().Err(err).Uint64("nonce", nonce).Msg("appender sign command")
		return
	}
	if !e.serving {
		h, err := c.face.SetInterestFilter(bundleName, func(i *ndn.Interest) { c.onBundleFetch(nonce, i) })
		if err != nil {
			log.Error().Err(err).Uint64("nonce", nonce).Msg("appender register bundle responder")
			return
		}
		e.bundle, e.serving = h, true
	}
	e.phase = PhaseFetchPending
	if err := c.face.Put(reply); err != nil {
		log.Warn().Err(err).Uint64("nonce", nonce).Msg("appender put command")
	}
}

// onBundleFetch serves the payloads once, then unregisters itself.
func (c *Client) onBundleFetch(nonce uint64, interest *ndn.Interest) {
	e, ok := c.live(nonce)
	if !ok || !e.serving {
		return
	}
	bundle := ndn.NewData(interest.Name, protocol.EncodeBundle(e.payloads))
	if err := c.signer.Sign(bundle, c.cfg.Signing); err != nil {
		log.Error().Err(err).Uint64("nonce", nonce).Msg("appender sign bundle")
		return
	}
	c.face.UnsetInterestFilter(e.bundle)
	e.serving = false
	e.payloads = nil
	if err := c.face.Put(bundle); err != nil {
		log.Warn().Err(err).Uint64("nonce", nonce).Msg("appender put bundle")
		return
	}
	log.Debug().Uint64("nonce", nonce).Stringer("name", bundle.Name).Msg("appender bundle served")
}

func (c *Client) finish(e *pendingAppend, phase Phase) {
	c.release(c.pending.Take(e.nonce))
	e.phase = phase
	observability.RecordAppendOutcome("holder", phase.String())
}

func (c *Client) release(e *pendingAppend) {
	if e.serving {
		c.face.UnsetInterestFilter(e.bundle)
		e.serving = false
	}
	if e.notify != nil {
		e.notify.Cancel()
	}
	e.payloads = nil
}

// Pending is the number of in-flight exchanges.
func (c *Client) Pending() int { return c.pending.Len() }

// Phase reports the phase of an in-flight exchange.
func (c *Client) Phase(nonce uint64) (Phase, bool) {
	e, ok := c.pending.Get(nonce)
	if !ok {
		return PhaseIdle, false
	}
	return e.phase, true
}

// Close unregisters every responder and cancels every outstanding interest
// without invoking callbacks.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.face.UnsetInterestFilter(c.msg)
	for _, e := range c.pending.Drain() {
		c.release(e)
	}
}
