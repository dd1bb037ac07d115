package events

import (
	"context"
	"fmt"
	"sync"
)

// Signal is an in-process, synchronous fan-out. Receivers run in the order
// they were connected, on the caller's goroutine, and the first error stops
// delivery and is returned to the sender.
type Signal[T any] struct {
	mu        sync.RWMutex
	name      string
	receivers []receiver[T]
}

type receiver[T any] struct {
	name string
	fn   func(ctx context.Context, payload T) error
}

func NewSignal[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

// Connect registers fn under name. Connecting the same name twice replaces
// the earlier receiver.
func (s *Signal[T]) Connect(name string, fn func(ctx context.Context, payload T) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.receivers {
		if r.name == name {
			s.receivers[i].fn = fn
			return
		}
	}
	s.receivers = append(s.receivers, receiver[T]{name: name, fn: fn})
}

func (s *Signal[T]) Disconnect(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.receivers {
		if r.name == name {
			s.receivers = append(s.receivers[:i], s.receivers[i+1:]...)
			return
		}
	}
}

// Send delivers payload to every receiver.
func (s *Signal[T]) Send(ctx context.Context, payload T) error {
	s.mu.RLock()
	receivers := make([]receiver[T], len(s.receivers))
	copy(receivers, s.receivers)
	s.mu.RUnlock()

	for _, r := range receivers {
		if err := r.fn(ctx, payload); err != nil {
			return fmt.Errorf("%s receiver %q failed: %w", s.name, r.name, err)
		}
	}
	return nil
}
