package appender

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/observability"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/rs/zerolog/log"
)

var (
	ErrListenerClosed = errors.New("appender: listener closed")
	ErrTopicExists    = errors.New("appender: topic already registered")
)

type ListenerConfig struct {
	Signing security.SigningInfo
	Session session.Config
}

type fetchStep uint8

const (
	stepCommand fetchStep = iota
	stepBundle
)

func (s fetchStep) String() string {
	if s == stepBundle {
		return "bundle"
	}
	return "command"
}

type topicEntry struct {
	topic  ndn.Name
	update UpdateFunc
	filter ndn.FilterHandle
}

type pendingNotification struct {
	nonce  uint64
	topic  *topicEntry
	origin *ndn.Interest
	params protocol.AppendParameters
	phase  Phase
	step   fetchStep
	retry  session.RetryCounter
	fetch  *ndn.PendingInterest
}

// maxCompletedNonces caps the replay window's memory under notify floods.
const maxCompletedNonces = 4096

type completedNonce struct {
	nonce   uint64
	expires time.Time
}

// Listener is the ledger side. Methods run on the face's loop.
type Listener struct {
	face      ndn.Face
	signer    security.Signer
	validator security.Validator
	cfg       ListenerConfig
	topics    map[string]*topicEntry
	pending   *session.Registry[uint64, *pendingNotification]
	// completed holds acked nonces in expiry order so replays stay single-use.
	completed []completedNonce
	done      map[uint64]struct{}
	closed    bool
}

func NewListener(face ndn.Face, signer security.Signer, validator security.Validator, cfg ListenerConfig) *Listener {
	cfg.Session = cfg.Session.WithDefaults()
	return &Listener{
		face:      face,
		signer:    signer,
		validator: validator,
		cfg:       cfg,
		topics:    make(map[string]*topicEntry),
		pending:   session.NewRegistry[uint64, *pendingNotification](),
		done:      make(map[uint64]struct{}),
	}
}

// replayWindow covers the longest a holder can keep re-sending one notify.
func (l *Listener) replayWindow() time.Duration {
	attempts := 1 + max(l.cfg.Session.LedgerMaxRetries, 0)
	return time.Duration(attempts) * l.cfg.Session.InterestLifetime
}

func (l *Listener) expireCompleted(now time.Time) {
	n := 0
	for n < len(l.completed) && !now.Before(l.completed[n].expires) {
		delete(l.done, l.completed[n].nonce)
		n++
	}
	l.completed = l.completed[n:]
}

func (l *Listener) markCompleted(nonce uint64) {
	now := l.face.Loop().Now()
	l.expireCompleted(now)
	if _, ok := l.done[nonce]; ok {
		return
	}
	if len(l.completed) >= maxCompletedNonces {
		delete(l.done, l.completed[0].nonce)
		l.completed = l.completed[1:]
	}
	l.completed = append(l.completed, completedNonce{nonce: nonce, expires: now.Add(l.replayWindow())})
	l.done[nonce] = struct{}{}
}

func (l *Listener) recentlyCompleted(nonce uint64) bool {
	l.expireCompleted(l.face.Loop().Now())
	_, ok := l.done[nonce]
	return ok
}

// Listen answers notifications on <topic>/notify, handing each pulled object to update.
func (l *Listener) Listen(topic ndn.Name, update UpdateFunc) error {
	if l.closed {
		return ErrListenerClosed
	}
	if len(topic) == 0 || update == nil {
		return protocol.Errorf(protocol.KindInvalidArgument, "appender: listen needs a topic and an update function")
	}
	key := topic.String()
	if _, ok := l.topics[key]; ok {
		return fmt.Errorf("%w: %s", ErrTopicExists, topic)
	}
	t := &topicEntry{topic: topic.Clone(), update: update}
	h, err := l.face.SetInterestFilter(naming.NotifyName(topic), func(i *ndn.Interest) { l.onNotify(t, i) })
	if err != nil {
		return err
	}
	t.filter = h
	l.topics[key] = t
	log.Info().Stringer("topic", topic).Msg("appender listening")
	return nil
}

func (l *Listener) onNotify(t *topicEntry, interest *ndn.Interest) {
	if l.closed {
		return
	}
	params, err := protocol.DecodeAppendParameters(interest.AppParameters)
	if err != nil {
		log.Warn().Err(err).Stringer("name", interest.Name).Msg("appender dropped malformed notify")
		return
	}
	if l.pending.Contains(params.Nonce) {
		log.Debug().Uint64("nonce", params.Nonce).Msg("appender duplicate notify ignored")
		return
	}
	if l.recentlyCompleted(params.Nonce) {
		log.Debug().Uint64("nonce", params.Nonce).Msg("appender replayed notify for completed nonce ignored")
		return
	}
	e := &pendingNotification{
		nonce:  params.Nonce,
		topic:  t,
		origin: interest.Clone(),
		params: params,
		phase:  PhaseNotifyReceived,
		retry:  session.RetryCounter{Max: l.cfg.Session.LedgerMaxRetries},
	}
	if err := l.pending.Insert(e.nonce, e); err != nil {
		log.Warn().Err(err).Msg("appender notify insert")
		return
	}
	log.Debug().Uint64("nonce", e.nonce).Stringer("holder", params.HolderPrefix).Msg("appender notify received")

	fetch := ndn.NewInterest(naming.CommandName(params.HolderPrefix, t.topic, params.Nonce))
	if len(params.ForwardingHint) > 0 {
		fetch.ForwardingHint = []ndn.Name{params.ForwardingHint}
	}
	l.express(e, stepCommand, fetch)
}

func (l *Listener) express(e *pendingNotification, step fetchStep, interest *ndn.Interest) {
	interest.MustBeFresh = true
	interest.Lifetime = l.cfg.Session.InterestLifetime
	e.step = step
	p, err := l.face.Express(interest, ndn.ExpressCallbacks{
		OnData:    func(_ *ndn.Interest, d *ndn.Data) { l.onFetched(e.nonce, step, d) },
		OnNack:    func(_ *ndn.Interest, r ndn.NackReason) { l.onFetchNack(e.nonce, step, r) },
		OnTimeout: func(i *ndn.Interest) { l.onFetchTimeout(e.nonce, step, i) },
	})
	if err != nil {
		log.Warn().Err(err).Uint64("nonce", e.nonce).Msg("appender express fetch")
		l.acknowledge(e, PhaseTimedOut, []protocol.StatusCode{protocol.StatusFailureTimeout})
		return
	}
	e.fetch = p
	if e.phase != PhaseFetchRetry {
		e.phase = PhaseFetchPending
	}
}

func (l *Listener) live(nonce uint64) (*pendingNotification, bool) {
	if l.closed {
		return nil, false
	}
	return l.pending.Get(nonce)
}

func (l *Listener) onFetchTimeout(nonce uint64, step fetchStep, interest *ndn.Interest) {
	e, ok := l.live(nonce)
	if !ok || e.step != step {
		return
	}
	if e.retry.Next() {
		retry := interest.Clone()
		retry.RefreshNonce()
		e.phase = PhaseFetchRetry
		log.Debug().Uint64("nonce", nonce).Stringer("step", step).Int("attempt", e.retry.Count).Msg("appender fetch retry")
		observability.RecordAppendRetry("ledger")
		l.express(e, step, retry)
		return
	}
	log.Warn().Uint64("nonce", nonce).Stringer("step", step).Msg("appender fetch timed out")
	l.acknowledge(e, PhaseTimedOut, []protocol.StatusCode{protocol.StatusFailureTimeout})
}

func (l *Listener) onFetchNack(nonce uint64, step fetchStep, reason ndn.NackReason) {
	e, ok := l.live(nonce)
	if !ok || e.step != step {
		return
	}
	log.Warn().Uint64("nonce", nonce).Stringer("step", step).Stringer("reason", reason).Msg("appender fetch nacked")
	l.acknowledge(e, PhaseNacked, []protocol.StatusCode{protocol.StatusFailureNack})
}

func (l *Listener) onFetched(nonce uint64, step fetchStep, d *ndn.Data) {
	e, ok := l.live(nonce)
	if !ok || e.step != step {
		return
	}
	if err := l.validator.Validate(d); err != nil {
		log.Warn().Err(err).Uint64("nonce", nonce).Stringer("step", step).Msg("appender fetched data failed validation")
		l.rejectProto(e)
		return
	}
	e.retry.Reset()
	switch step {
	case stepCommand:
		cmd, err := protocol.DecodeAppendCommand(d.Content)
		if err != nil {
			log.Warn().Err(err).Uint64("nonce", nonce).Msg("appender command unparsable")
			l.rejectProto(e)
			return
		}
		fetch := ndn.NewInterest(cmd.PayloadName)
		if len(cmd.ForwardingHint) > 0 {
			fetch.ForwardingHint = []ndn.Name{cmd.ForwardingHint}
		}
		l.express(e, stepBundle, fetch)
	case stepBundle:
		objects, err := protocol.DecodeBundle(d.Content)
		if err != nil || len(objects) == 0 {
			log.Warn().Err(err).Uint64("nonce", nonce).Msg("appender bundle unparsable")
			l.rejectProto(e)
			return
		}
		statuses := make([]protocol.StatusCode, 0, len(objects))
		for _, obj := range objects {
			statuses = append(statuses, e.topic.update(obj))
		}
		l.acknowledge(e, PhaseAcked, statuses)
	}
}

func (l *Listener) rejectProto(e *pendingNotification) {
	l.acknowledge(e, PhaseValidationFailed, []protocol.StatusCode{protocol.StatusFailureValidationProto})
}

// acknowledge removes the entry and answers the original notify.
func (l *Listener) acknowledge(e *pendingNotification, phase Phase, statuses []protocol.StatusCode) {
	l.pending.Take(e.nonce)
	l.markCompleted(e.nonce)
	e.phase = phase
	observability.RecordAppendOutcome("ledger", phase.String())
	if e.fetch != nil {
		e.fetch.Cancel()
	}
	ack := ndn.NewData(e.origin.Name, protocol.EncodeStatusList(statuses))
	if err := l.signer.Sign(ack, l.cfg.Signing); err != nil {
		log.Error().Err(err).Uint64("nonce", e.nonce).Msg("appender sign ack")
		return
	}
	if err := l.face.Put(ack); err != nil {
		log.Warn().Err(err).Uint64("nonce", e.nonce).Msg("appender put ack")
		return
	}
	log.Debug().Uint64("nonce", e.nonce).Stringer("phase", phase).Interface("statuses", statuses).Msg("appender acknowledged")
}

func (l *Listener) Pending() int { return l.pending.Len() }

func (l *Listener) Phase(nonce uint64) (Phase, bool) {
	e, ok := l.pending.Get(nonce)
	if !ok {
		return PhaseIdle, false
	}
	return e.phase, true
}

// Close stops every topic and abandons in-flight exchanges without acking.
func (l *Listener) Close() {
	if l.closed {
		return
	}
	l.closed = true
	for key, t := range l.topics {
		l.face.UnsetInterestFilter(t.filter)
		delete(l.topics, key)
	}
	for _, e := range l.pending.Drain() {
		if e.fetch != nil {
			e.fetch.Cancel()
		}
	}
}
