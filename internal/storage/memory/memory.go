// Package memory is the volatile certificate state backend.
package memory

import (
	"sync"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/storage"
)

const BackendName = "memory"

// Store is a mutex-guarded map keyed by certificate name URI.
type Store struct {
	mu       sync.RWMutex
	states   map[string]storage.CertificateState
	prefixes storage.PrefixSet
	closed   bool
}

func New(prefixes storage.PrefixSet) *Store {
	return &Store{
		states:   make(map[string]storage.CertificateState),
		prefixes: prefixes,
	}
}

// Open satisfies storage.Opener.
func Open(opts storage.Options) (storage.Store, error) {
	return New(opts.Prefixes), nil
}

func (s *Store) Get(cert ndn.Name) (storage.CertificateState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.CertificateState{}, storage.ErrClosed
	}
	st, ok := s.states[cert.String()]
	if !ok {
		return storage.CertificateState{}, storage.NotFound(cert)
	}
	return st.Clone(), nil
}

func (s *Store) Put(next storage.CertificateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	key := next.CertName.String()
	var current *storage.CertificateState
	if st, ok := s.states[key]; ok {
		current = &st
	}
	if err := storage.CheckPut(current, next); err != nil {
		return err
	}
	s.states[key] = next.Clone()
	return nil
}

func (s *Store) List(prefix ndn.Name) ([]storage.CertificateState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	out := make([]storage.CertificateState, 0, len(s.states))
	for _, st := range s.states {
		if s.prefixes.Selects(prefix, st.CertName) {
			out = append(out, st.Clone())
		}
	}
	storage.SortStates(out)
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.states = make(map[string]storage.CertificateState)
	return nil
}
