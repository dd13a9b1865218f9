package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/ndnrevoke/internal/ndn"
)

var (
	ErrBackendExists  = errors.New("storage: backend already registered")
	ErrUnknownBackend = errors.New("storage: unknown backend")
	ErrOpenerNil      = errors.New("storage: opener is nil")
)

// Options configure a backend at open time.
type Options struct {
	// Path is the on-disk location for durable backends.
	Path     string
	Prefixes PrefixSet
}

// Opener constructs one backend instance.
type Opener func(Options) (Store, error)

// Factory maps backend names to openers. Each ledger builds its own factory;
// there is no process-wide table.
type Factory struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

func NewFactory() *Factory {
	return &Factory{openers: make(map[string]Opener)}
}

func (f *Factory) Register(name string, open Opener) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownBackend)
	}
	if open == nil {
		return ErrOpenerNil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.openers[name]; ok {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	f.openers[name] = open
	return nil
}

func (f *Factory) Open(name string, opts Options) (Store, error) {
	f.mu.RLock()
	open, ok := f.openers[strings.TrimSpace(name)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return open(opts)
}

// Backends lists registered names in order.
func (f *Factory) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.openers))
	for name := range f.openers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SortStates orders states by certificate name in NDN canonical order:
// component by component, shorter component values first.
func SortStates(states []CertificateState) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].CertName.Compare(states[j].CertName) < 0
	})
}

// ParsePrefixes turns URIs into a PrefixSet.
func ParsePrefixes(uris []string) (PrefixSet, error) {
	out := make(PrefixSet, 0, len(uris))
	for _, u := range uris {
		n, err := ndn.ParseName(u)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
