package main

import "sync"

// Subject holds a current value and hands it to every subscriber, first on
// subscription and then on each change. Delivery is conflated: a subscriber
// that falls behind only sees the most recent value, so Publish never blocks.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	nextId int
	subs   map[int]chan T
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel that immediately holds the current value. The
// returned cancel func closes the channel and is safe to call more than once.
func (s *Subject[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId
	s.nextId++
	ch := make(chan T, 1)
	ch <- s.value
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Subject[T]) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// offer replaces whatever is buffered in ch with v. Only Publish sends, and it
// holds the subject lock, so the drain-then-send cannot be raced by another sender.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
