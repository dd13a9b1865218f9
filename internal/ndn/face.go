package ndn

import (
	"errors"
	"sort"
)

var ErrFaceClosed = errors.New("ndn: face closed")

// ExpressCallbacks receive exactly one outcome per expressed interest.
type ExpressCallbacks struct {
	OnData    func(*Interest, *Data)
	OnNack    func(*Interest, NackReason)
	OnTimeout func(*Interest)
}

type InterestHandler func(*Interest)

type FilterHandle uint64

// Face is the transport contract: express interests, answer them, and
// register responders. All methods must be called from the face's loop.
type Face interface {
	Loop() *Loop
	Express(interest *Interest, cb ExpressCallbacks) (*PendingInterest, error)
	Put(data *Data) error
	PutNack(interest *Interest, reason NackReason) error
	SetInterestFilter(prefix Name, handler InterestHandler) (FilterHandle, error)
	UnsetInterestFilter(h FilterHandle)
	// RegisterPrefix announces a route without installing a handler, so
	// interests carrying the prefix as a forwarding hint reach this face.
	RegisterPrefix(prefix Name) error
	Close() error
}

// PendingInterest is one outstanding Express call.
type PendingInterest struct {
	table    *PendingTable
	id       uint64
	interest *Interest
	cb       ExpressCallbacks
	timer    *Timer
}

func (p *PendingInterest) Interest() *Interest { return p.interest }

// Cancel drops the interest without invoking any callback.
func (p *PendingInterest) Cancel() {
	if p == nil || p.table == nil {
		return
	}
	p.table.remove(p)
}

// PendingTable tracks a face's outstanding interests and their lifetimes.
type PendingTable struct {
	loop    *Loop
	next    uint64
	entries map[uint64]*PendingInterest
}

func NewPendingTable(loop *Loop) *PendingTable {
	return &PendingTable{loop: loop, entries: make(map[uint64]*PendingInterest)}
}

// Add records interest and arms its lifetime timer.
func (t *PendingTable) Add(interest *Interest, cb ExpressCallbacks) *PendingInterest {
	t.next++
	p := &PendingInterest{table: t, id: t.next, interest: interest, cb: cb}
	lifetime := interest.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultInterestLifetime
	}
	p.timer = t.loop.AfterFunc(lifetime, func() {
		if _, ok := t.entries[p.id]; !ok {
			return
		}
		delete(t.entries, p.id)
		if p.cb.OnTimeout != nil {
			p.cb.OnTimeout(p.interest)
		}
	})
	t.entries[p.id] = p
	return p
}

func (t *PendingTable) remove(p *PendingInterest) bool {
	if _, ok := t.entries[p.id]; !ok {
		return false
	}
	delete(t.entries, p.id)
	p.timer.Stop()
	return true
}

func (t *PendingTable) ordered() []*PendingInterest {
	out := make([]*PendingInterest, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Satisfy delivers d to every matching pending interest and returns the count.
func (t *PendingTable) Satisfy(d *Data) int {
	n := 0
	for _, p := range t.ordered() {
		if !p.interest.Matches(d) || !t.remove(p) {
			continue
		}
		n++
		if p.cb.OnData != nil {
			p.cb.OnData(p.interest, d)
		}
	}
	return n
}

// Nack delivers reason to the pending interest with the same name and nonce.
func (t *PendingTable) Nack(interest *Interest, reason NackReason) bool {
	for _, p := range t.ordered() {
		if p.interest.Nonce != interest.Nonce || !p.interest.Name.Equal(interest.Name) {
			continue
		}
		t.remove(p)
		if p.cb.OnNack != nil {
			p.cb.OnNack(p.interest, reason)
		}
		return true
	}
	return false
}

// CancelAll drops every entry without callbacks.
func (t *PendingTable) CancelAll() {
	for _, p := range t.ordered() {
		t.remove(p)
	}
}

func (t *PendingTable) Len() int { return len(t.entries) }

type filterEntry struct {
	prefix  Name
	handler InterestHandler
}

// FilterTable dispatches incoming interests to the longest matching prefix.
type FilterTable struct {
	next    FilterHandle
	entries map[FilterHandle]filterEntry
}

func NewFilterTable() *FilterTable {
	return &FilterTable{entries: make(map[FilterHandle]filterEntry)}
}

func (t *FilterTable) Add(prefix Name, handler InterestHandler) FilterHandle {
	t.next++
	t.entries[t.next] = filterEntry{prefix: prefix.Clone(), handler: handler}
	return t.next
}

func (t *FilterTable) Remove(h FilterHandle) bool {
	if _, ok := t.entries[h]; !ok {
		return false
	}
	delete(t.entries, h)
	return true
}

// Prefix returns the prefix registered under h.
func (t *FilterTable) Prefix(h FilterHandle) (Name, bool) {
	e, ok := t.entries[h]
	return e.prefix, ok
}

// Lookup returns the handler with the longest prefix of name; ties go to the
// earliest registration.
func (t *FilterTable) Lookup(name Name) (InterestHandler, bool) {
	var (
		best    InterestHandler
		bestLen = -1
		bestID  FilterHandle
	)
	for id, e := range t.entries {
		if !e.prefix.IsPrefixOf(name) {
			continue
		}
		if len(e.prefix) > bestLen || (len(e.prefix) == bestLen && id < bestID) {
			best, bestLen, bestID = e.handler, len(e.prefix), id
		}
	}
	return best, bestLen >= 0
}

// Prefixes lists registered prefixes in handle order.
func (t *FilterTable) Prefixes() []Name {
	ids := make([]FilterHandle, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Name, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.entries[id].prefix)
	}
	return out
}

func (t *FilterTable) Clear() {
	t.entries = make(map[FilterHandle]filterEntry)
}

func (t *FilterTable) Len() int { return len(t.entries) }
