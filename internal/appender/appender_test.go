package appender

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/ndnrevoke/internal/naming"
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/ndn/memface"
	"github.com/danmuck/ndnrevoke/internal/protocol"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/danmuck/ndnrevoke/internal/testutil/ndntest"
	"github.com/danmuck/ndnrevoke/internal/testutil/testlog"
)

var ledgerPrefix = ndn.MustParseName("/ndn")

type outcome struct {
	success  int
	failure  int
	timeout  int
	nack     int
	statuses []protocol.StatusCode
	err      error
	reason   ndn.NackReason
}

func (o *outcome) total() int { return o.success + o.failure + o.timeout + o.nack }

func (o *outcome) callbacks() Callbacks {
	return Callbacks{
		OnSuccess: func(_ uint64, s []protocol.StatusCode) { o.success++; o.statuses = s },
		OnFailure: func(_ uint64, s []protocol.StatusCode, err error) { o.failure++; o.statuses = s; o.err = err },
		OnTimeout: func(uint64) { o.timeout++ },
		OnNack:    func(_ uint64, r ndn.NackReason) { o.nack++; o.reason = r },
	}
}

type harness struct {
	fx         *ndntest.Fixture
	holderFace *memface.Face
	ledgerFace *memface.Face
	client     *Client
	listener   *Listener
	topic      ndn.Name
	stored     []*ndn.Data
	status     protocol.StatusCode
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fx := ndntest.New(t)
	h := &harness{
		fx:         fx,
		holderFace: fx.Face("holder"),
		ledgerFace: fx.Face("ledger"),
		topic:      naming.AppendTopic(ledgerPrefix),
		status:     protocol.StatusSuccess,
	}
	client, err := NewClient(h.holderFace, fx.KeyChain, fx.Validator, ClientConfig{
		Prefix:  fx.Alice.Name,
		Signing: security.SignWithIdentity(fx.Alice.Name),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	h.listener = NewListener(h.ledgerFace, fx.KeyChain, fx.Validator, ListenerConfig{
		Signing: security.SignWithIdentity(fx.Ledger.Name),
	})
	if err := h.listener.Listen(h.topic, h.update); err != nil {
		t.Fatalf("listen: %v", err)
	}
	return h
}

func (h *harness) update(obj *ndn.Data) protocol.StatusCode {
	h.stored = append(h.stored, obj)
	return h.status
}

func (h *harness) payload(t *testing.T) *ndn.Data {
	t.Helper()
	d := ndn.NewData(h.fx.Alice.Name.AppendString("payload"), []byte("p"))
	if err := h.fx.KeyChain.Sign(d, security.SignWithIdentity(h.fx.Alice.Name)); err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	return d
}

func TestAppendStoresPayloadAndAcksSuccess(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out outcome
	nonce, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if phase, ok := h.client.Phase(nonce); !ok || phase != PhaseNotifySent {
		t.Fatalf("expected notify-sent, got=%s ok=%v", phase, ok)
	}
	h.fx.Drain()

	if out.success != 1 || out.total() != 1 {
		t.Fatalf("expected exactly one success, got=%+v", out)
	}
	if len(out.statuses) != 1 || out.statuses[0] != protocol.StatusSuccess {
		t.Fatalf("unexpected statuses: %v", out.statuses)
	}
	if len(h.stored) != 1 || !h.stored[0].Name.Equal(h.fx.Alice.Name.AppendString("payload")) {
		t.Fatalf("ledger stored %d objects", len(h.stored))
	}
	if h.client.Pending() != 0 || h.listener.Pending() != 0 {
		t.Fatalf("entries left behind: holder=%d ledger=%d", h.client.Pending(), h.listener.Pending())
	}
	bundle := naming.BundleName(naming.CommandName(h.fx.Alice.Name, h.topic, nonce))
	if h.holderFace.HasFilter(bundle) {
		t.Fatalf("bundle responder still registered")
	}
}

func TestAppendMultiplePayloadsKeepsStatusOrder(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	calls := 0
	h.listener.Close()
	h.listener = NewListener(h.ledgerFace, h.fx.KeyChain, h.fx.Validator, ListenerConfig{Signing: security.SignWithIdentity(h.fx.Ledger.Name)})
	_ = h.listener.Listen(h.topic, func(*ndn.Data) protocol.StatusCode {
		calls++
		if calls == 2 {
			return protocol.StatusFailureStorage
		}
		return protocol.StatusSuccess
	})

	var out outcome
	payloads := []*ndn.Data{h.payload(t), h.payload(t), h.payload(t)}
	if _, err := h.client.Append(h.topic, payloads, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	want := []protocol.StatusCode{protocol.StatusSuccess, protocol.StatusFailureStorage, protocol.StatusSuccess}
	if out.failure != 1 || out.total() != 1 || out.err != nil {
		t.Fatalf("expected one failure with statuses, got=%+v", out)
	}
	for i := range want {
		if out.statuses[i] != want[i] {
			t.Fatalf("status %d got=%s want=%s", i, out.statuses[i], want[i])
		}
	}
}

func TestAppendTimesOutWhenCommandFetchUnanswered(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.fx.Net.DropInterests(naming.MsgPrefix(h.fx.Alice.Name), -1)

	var out outcome
	nonce, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	bundle := naming.BundleName(naming.CommandName(h.fx.Alice.Name, h.topic, nonce))
	h.fx.Advance(session.DefaultConfig().InterestLifetime * 2)
	if phase, ok := h.listener.Phase(nonce); !ok || phase != PhaseFetchRetry {
		t.Fatalf("ledger expected fetch-retry, got=%s ok=%v", phase, ok)
	}
	if h.holderFace.HasFilter(bundle) {
		t.Fatalf("bundle responder registered without a command fetch")
	}
	h.fx.Drain()

	if out.timeout != 1 || out.total() != 1 {
		t.Fatalf("expected exactly one timeout, got=%+v", out)
	}
	if got, want := h.fx.Net.Dropped(), 1+session.DefaultConfig().LedgerMaxRetries; got != want {
		t.Fatalf("command fetch attempts got=%d want=%d", got, want)
	}
	if h.client.Pending() != 0 || h.listener.Pending() != 0 {
		t.Fatalf("entries left behind: holder=%d ledger=%d", h.client.Pending(), h.listener.Pending())
	}
	if len(h.stored) != 0 {
		t.Fatalf("nothing should be stored, got=%d", len(h.stored))
	}
}

func TestAppendRecoversFromDroppedPackets(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.fx.Net.DropInterests(naming.NotifyName(h.topic), 2)
	h.fx.Net.DropInterests(naming.MsgPrefix(h.fx.Alice.Name), 1)

	var out outcome
	if _, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if out.success != 1 || out.total() != 1 {
		t.Fatalf("expected success after retries, got=%+v", out)
	}
	if h.fx.Net.Dropped() != 3 {
		t.Fatalf("dropped got=%d", h.fx.Net.Dropped())
	}
}

func TestAppendNackIsTerminal(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out outcome
	if _, err := h.client.Append(ndn.MustParseName("/nowhere/LEDGER/append"), []*ndn.Data{h.payload(t)}, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if out.nack != 1 || out.total() != 1 || out.reason != ndn.NackNoRoute {
		t.Fatalf("expected one no-route nack, got=%+v", out)
	}
	if h.client.Pending() != 0 {
		t.Fatalf("nacked entry left behind")
	}
}

func TestAppendRejectsInvalidArguments(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out outcome
	if _, err := h.client.Append(nil, []*ndn.Data{h.payload(t)}, out.callbacks()); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("empty topic: expected ErrInvalidArgument, got=%v", err)
	}
	if _, err := h.client.Append(h.topic, nil, out.callbacks()); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("no payloads: expected ErrInvalidArgument, got=%v", err)
	}
	if h.client.Pending() != 0 || h.holderFace.PendingCount() != 0 {
		t.Fatalf("invalid append performed I/O")
	}
	h.fx.Drain()
	if out.total() != 0 {
		t.Fatalf("invalid append fired callbacks: %+v", out)
	}
}

func TestUnknownNonceDoesNotPerturbState(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.fx.Net.DropInterests(naming.NotifyName(h.topic), -1)
	var out outcome
	nonce, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks())
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	peer := h.fx.Face("peer")
	answered := 0
	for _, name := range []ndn.Name{
		naming.CommandName(h.fx.Alice.Name, h.topic, nonce+1),
		naming.CommandName(h.fx.Alice.Name, ndn.MustParseName("/other/topic"), nonce),
		naming.MsgPrefix(h.fx.Alice.Name).AppendString("garbage"),
	} {
		i := ndn.NewInterest(name)
		if _, err := peer.Express(i, ndn.ExpressCallbacks{OnData: func(*ndn.Interest, *ndn.Data) { answered++ }}); err != nil {
			t.Fatalf("express peer: %v", err)
		}
	}
	h.fx.Advance(session.DefaultConfig().InterestLifetime / 2)
	if answered != 0 {
		t.Fatalf("unknown nonce fetch answered %d times", answered)
	}
	if phase, ok := h.client.Phase(nonce); !ok || phase != PhaseNotifySent {
		t.Fatalf("state perturbed: phase=%s ok=%v", phase, ok)
	}
	if len(h.holderFace.Filters()) != 1 {
		t.Fatalf("unexpected filters: %v", h.holderFace.Filters())
	}
	if out.total() != 0 {
		t.Fatalf("callbacks fired: %+v", out)
	}
}

func TestLedgerAcksFailureNackWhenHolderUnreachable(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	peer := h.fx.Face("peer")
	params, _ := protocol.EncodeAppendParameters(protocol.AppendParameters{
		HolderPrefix: ndn.MustParseName("/holder"),
		Nonce:        42,
	})
	notify := ndn.NewInterest(naming.NotifyName(h.topic))
	notify.SetAppParameters(params)
	var statuses []protocol.StatusCode
	_, err := peer.Express(notify, ndn.ExpressCallbacks{OnData: func(_ *ndn.Interest, d *ndn.Data) {
		if err := h.fx.Validator.Validate(d); err != nil {
			t.Errorf("ack validation: %v", err)
		}
		statuses, _ = protocol.DecodeStatusList(d.Content)
	}})
	if err != nil {
		t.Fatalf("express: %v", err)
	}
	h.fx.Drain()
	if len(statuses) != 1 || statuses[0] != protocol.StatusFailureNack {
		t.Fatalf("expected FAILURE_NACK ack, got=%v", statuses)
	}
	if h.listener.Pending() != 0 {
		t.Fatalf("nacked notification left behind")
	}
}

func TestLedgerIgnoresReplayedCompletedNonce(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out outcome
	nonce, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if out.success != 1 || h.listener.Pending() != 0 {
		t.Fatalf("append did not complete: out=%+v pending=%d", out, h.listener.Pending())
	}

	params, err := protocol.EncodeAppendParameters(protocol.AppendParameters{
		HolderPrefix: h.fx.Alice.Name,
		Nonce:        nonce,
	})
	if err != nil {
		t.Fatalf("encode params: %v", err)
	}
	replay := func() (acked *bool) {
		acked = new(bool)
		notify := ndn.NewInterest(naming.NotifyName(h.topic))
		notify.SetAppParameters(params)
		if _, err := h.fx.Face("replay").Express(notify, ndn.ExpressCallbacks{
			OnData: func(*ndn.Interest, *ndn.Data) { *acked = true },
		}); err != nil {
			t.Fatalf("express replay: %v", err)
		}
		return acked
	}

	acked := replay()
	h.fx.Advance(session.DefaultConfig().InterestLifetime / 2)
	if n := h.listener.Pending(); n != 0 {
		t.Fatalf("replayed nonce reopened an exchange: got=%d", n)
	}
	h.fx.Drain()
	if *acked || len(h.stored) != 1 || out.total() != 1 {
		t.Fatalf("replay must be dropped silently: acked=%v stored=%d out=%+v", *acked, len(h.stored), out)
	}

	cfg := session.DefaultConfig()
	h.fx.Advance(time.Duration(1+cfg.LedgerMaxRetries) * cfg.InterestLifetime)
	replay()
	h.fx.Advance(cfg.InterestLifetime / 2)
	if n := h.listener.Pending(); n != 1 {
		t.Fatalf("nonce must be accepted once the replay window passes: got=%d", n)
	}
}

func TestLedgerDropsMalformedNotify(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	peer := h.fx.Face("peer")
	notify := ndn.NewInterest(naming.NotifyName(h.topic))
	notify.SetAppParameters([]byte{0xFF, 0x01})
	timedOut := false
	if _, err := peer.Express(notify, ndn.ExpressCallbacks{OnTimeout: func(*ndn.Interest) { timedOut = true }}); err != nil {
		t.Fatalf("express: %v", err)
	}
	h.fx.Drain()
	if !timedOut || h.listener.Pending() != 0 {
		t.Fatalf("malformed notify must be dropped silently: timedOut=%v pending=%d", timedOut, h.listener.Pending())
	}
}

func TestLedgerRejectsUntrustedHolder(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	rogue, id := h.fx.Rogue(t, "/ndn/site1/alice")
	h.client.Close()
	client, err := NewClient(h.holderFace, rogue, h.fx.Validator, ClientConfig{
		Prefix:  h.fx.Alice.Name,
		Signing: security.SignWithIdentity(id.Name),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var out outcome
	if _, err := client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if out.failure != 1 || out.total() != 1 || len(out.statuses) != 1 || out.statuses[0] != protocol.StatusFailureValidationProto {
		t.Fatalf("expected FAILURE_VALIDATION_PROTO, got=%+v", out)
	}
	if len(h.stored) != 0 {
		t.Fatalf("untrusted bundle stored")
	}
}

func TestAckValidationFailureIsTerminal(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	rogue, id := h.fx.Rogue(t, "/ndn/ledger")
	h.listener.Close()
	h.listener = NewListener(h.ledgerFace, rogue, h.fx.Validator, ListenerConfig{Signing: security.SignWithIdentity(id.Name)})
	if err := h.listener.Listen(h.topic, h.update); err != nil {
		t.Fatalf("listen: %v", err)
	}
	var out outcome
	if _, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.fx.Drain()
	if out.failure != 1 || out.total() != 1 || !errors.Is(out.err, protocol.ErrValidation) || out.statuses != nil {
		t.Fatalf("expected terminal validation failure, got=%+v", out)
	}
	if h.client.Pending() != 0 {
		t.Fatalf("entry left after ack validation failure")
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	var out outcome
	if _, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h.client.Close()
	h.listener.Close()
	h.fx.Drain()
	if out.total() != 0 {
		t.Fatalf("callbacks fired after close: %+v", out)
	}
	if len(h.holderFace.Filters()) != 0 || len(h.ledgerFace.Filters()) != 0 {
		t.Fatalf("filters left after close: holder=%v ledger=%v", h.holderFace.Filters(), h.ledgerFace.Filters())
	}
	if h.holderFace.PendingCount() != 0 || h.ledgerFace.PendingCount() != 0 {
		t.Fatalf("interests left after close")
	}
	if _, err := h.client.Append(h.topic, []*ndn.Data{h.payload(t)}, out.callbacks()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got=%v", err)
	}
	if err := h.listener.Listen(h.topic, h.update); !errors.Is(err, ErrListenerClosed) {
		t.Fatalf("expected ErrListenerClosed, got=%v", err)
	}
}

func TestPhaseTerminal(t *testing.T) {
	testlog.Start(t)
	for _, p := range []Phase{PhaseAcked, PhaseTimedOut, PhaseNacked, PhaseValidationFailed} {
		if !p.Terminal() {
			t.Fatalf("%s should be terminal", p)
		}
	}
	for _, p := range []Phase{PhaseIdle, PhaseNotifySent, PhaseNotifyReceived, PhaseFetchPending, PhaseFetchRetry} {
		if p.Terminal() {
			t.Fatalf("%s should not be terminal", p)
		}
	}
}
