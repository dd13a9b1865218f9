// Package memface connects faces inside one process. All faces of a Network
// share the Network's loop; delivery is posted to that loop so callbacks never
// run inside the call that produced them.
package memface

import (
	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/rs/zerolog/log"
)

type dropKind int

const (
	dropInterests dropKind = iota
	dropData
)

type dropRule struct {
	kind      dropKind
	prefix    ndn.Name
	remaining int
}

// Network routes interests between faces by longest-prefix match.
type Network struct {
	loop    *ndn.Loop
	faces   []*Face
	drops   []*dropRule
	dropped int
}

func NewNetwork(loop *ndn.Loop) *Network {
	return &Network{loop: loop}
}

func (n *Network) Loop() *ndn.Loop { return n.loop }

// NewFace attaches a face; label only appears in logs.
func (n *Network) NewFace(label string) *Face {
	f := &Face{
		label:   label,
		net:     n,
		pending: ndn.NewPendingTable(n.loop),
		filters: ndn.NewFilterTable(),
	}
	n.faces = append(n.faces, f)
	return f
}

// DropInterests discards the next count interests under prefix; count < 0
// drops until ClearDrops.
func (n *Network) DropInterests(prefix ndn.Name, count int) {
	n.drops = append(n.drops, &dropRule{kind: dropInterests, prefix: prefix, remaining: count})
}

// DropData discards the next count data packets under prefix.
func (n *Network) DropData(prefix ndn.Name, count int) {
	n.drops = append(n.drops, &dropRule{kind: dropData, prefix: prefix, remaining: count})
}

func (n *Network) ClearDrops() { n.drops = nil }

// Dropped reports how many packets drop rules have discarded.
func (n *Network) Dropped() int { return n.dropped }

func (n *Network) shouldDrop(kind dropKind, name ndn.Name) bool {
	for _, r := range n.drops {
		if r.kind != kind || r.remaining == 0 || !r.prefix.IsPrefixOf(name) {
			continue
		}
		if r.remaining > 0 {
			r.remaining--
		}
		n.dropped++
		return true
	}
	return false
}

// route picks the face with the longest registered prefix of the first
// forwarding hint that resolves, falling back to the interest name.
func (n *Network) route(origin *Face, interest *ndn.Interest) *Face {
	for _, hint := range interest.ForwardingHint {
		if f := n.longestMatch(origin, hint); f != nil {
			return f
		}
	}
	return n.longestMatch(origin, interest.Name)
}

func (n *Network) longestMatch(origin *Face, name ndn.Name) *Face {
	var best *Face
	bestLen := -1
	for _, f := range n.faces {
		if f == origin || f.closed {
			continue
		}
		for _, p := range f.routes() {
			if p.IsPrefixOf(name) && len(p) > bestLen {
				best, bestLen = f, len(p)
			}
		}
	}
	return best
}

func (n *Network) forwardInterest(origin *Face, interest *ndn.Interest) {
	if n.shouldDrop(dropInterests, interest.Name) {
		log.Trace().Str("face", origin.label).Stringer("name", interest.Name).Msg("memface dropped interest")
		return
	}
	target := n.route(origin, interest)
	if target == nil {
		log.Debug().Str("face", origin.label).Stringer("name", interest.Name).Msg("memface no route")
		origin.pending.Nack(interest, ndn.NackNoRoute)
		return
	}
	handler, ok := target.filters.Lookup(interest.Name)
	if !ok {
		log.Debug().Str("face", target.label).Stringer("name", interest.Name).Msg("memface no filter for routed interest")
		return
	}
	handler(interest)
}

func (n *Network) deliverData(data *ndn.Data) {
	if n.shouldDrop(dropData, data.Name) {
		log.Trace().Stringer("name", data.Name).Msg("memface dropped data")
		return
	}
	for _, f := range n.faces {
		if !f.closed {
			f.pending.Satisfy(data)
		}
	}
}

func (n *Network) deliverNack(interest *ndn.Interest, reason ndn.NackReason) {
	for _, f := range n.faces {
		if !f.closed && f.pending.Nack(interest, reason) {
			return
		}
	}
}

// Face is one endpoint on a Network.
type Face struct {
	label    string
	net      *Network
	pending  *ndn.PendingTable
	filters  *ndn.FilterTable
	prefixes []ndn.Name
	closed   bool
}

var _ ndn.Face = (*Face)(nil)

func (f *Face) Loop() *ndn.Loop { return f.net.loop }

func (f *Face) routes() []ndn.Name {
	return append(append([]ndn.Name(nil), f.prefixes...), f.filters.Prefixes()...)
}

func (f *Face) Express(interest *ndn.Interest, cb ndn.ExpressCallbacks) (*ndn.PendingInterest, error) {
	if f.closed {
		return nil, ndn.ErrFaceClosed
	}
	p := f.pending.Add(interest, cb)
	wire := interest.Clone()
	f.net.loop.Post(func() { f.net.forwardInterest(f, wire) })
	return p, nil
}

func (f *Face) Put(data *ndn.Data) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	wire := data.Clone()
	f.net.loop.Post(func() { f.net.deliverData(wire) })
	return nil
}

func (f *Face) PutNack(interest *ndn.Interest, reason ndn.NackReason) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	wire := interest.Clone()
	f.net.loop.Post(func() { f.net.deliverNack(wire, reason) })
	return nil
}

func (f *Face) SetInterestFilter(prefix ndn.Name, handler ndn.InterestHandler) (ndn.FilterHandle, error) {
	if f.closed {
		return 0, ndn.ErrFaceClosed
	}
	return f.filters.Add(prefix, handler), nil
}

func (f *Face) UnsetInterestFilter(h ndn.FilterHandle) {
	f.filters.Remove(h)
}

func (f *Face) RegisterPrefix(prefix ndn.Name) error {
	if f.closed {
		return ndn.ErrFaceClosed
	}
	f.prefixes = append(f.prefixes, prefix.Clone())
	return nil
}

// Close cancels pending interests silently and removes every filter and route.
func (f *Face) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.pending.CancelAll()
	f.filters.Clear()
	f.prefixes = nil
	return nil
}

// Filters lists the prefixes with an installed handler.
func (f *Face) Filters() []ndn.Name { return f.filters.Prefixes() }

// HasFilter reports whether exactly prefix has a handler installed.
func (f *Face) HasFilter(prefix ndn.Name) bool {
	for _, p := range f.filters.Prefixes() {
		if p.Equal(prefix) {
			return true
		}
	}
	return false
}

func (f *Face) PendingCount() int { return f.pending.Len() }
