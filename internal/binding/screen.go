package binding

import (
	"context"
	"fmt"
	"sync"
)

// Screen owns a set of bindings with unique keys. Closing the screen tears
// down every binding.
type Screen struct {
	mu    sync.RWMutex
	order []*Binding
	byKey map[string]*Binding
}

// NewScreen creates an empty Screen.
func NewScreen() *Screen {
	return &Screen{byKey: make(map[string]*Binding)}
}

// Add registers b. Keys must be unique within a screen.
func (s *Screen) Add(b *Binding) error {
	if b.Key() == "" {
		return fmt.Errorf("binding key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[b.Key()]; ok {
		return fmt.Errorf("duplicate binding key %q", b.Key())
	}
	s.byKey[b.Key()] = b
	s.order = append(s.order, b)
	return nil
}

// Get looks up a binding by key.
func (s *Screen) Get(key string) (*Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byKey[key]
	return b, ok
}

// Bindings returns all bindings in the order they were added.
func (s *Screen) Bindings() []*Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Binding, len(s.order))
	copy(out, s.order)
	return out
}

// InitAll loads the current value of every binding.
func (s *Screen) InitAll(ctx context.Context) {
	for _, b := range s.Bindings() {
		b.InitValue(ctx)
	}
}

// Close tears down every binding, cancelling pending reinits.
func (s *Screen) Close() {
	for _, b := range s.Bindings() {
		b.Close()
	}
}
