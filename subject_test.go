package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectReplaysLatest(t *testing.T) {
	s := NewSubject("initial")
	s.Publish("first")
	s.Publish("second")

	ch, cancel := s.Subscribe()
	defer cancel()
	assert.Equal(t, "second", <-ch)
	assert.Equal(t, "second", s.Value())
}

func TestSubjectConflatesSlowSubscribers(t *testing.T) {
	s := NewSubject(0)
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 1; i <= 100; i++ {
		s.Publish(i)
	}
	assert.Equal(t, 100, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestSubjectManySubscribers(t *testing.T) {
	s := NewSubject("a")
	chans := make([]<-chan string, 5)
	for i := range chans {
		ch, cancel := s.Subscribe()
		defer cancel()
		chans[i] = ch
		assert.Equal(t, "a", <-ch)
	}
	s.Publish("b")
	for _, ch := range chans {
		assert.Equal(t, "b", <-ch)
	}
	assert.Equal(t, 5, s.subscribers())
}

func TestSubjectCancel(t *testing.T) {
	s := NewSubject(1)
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, s.subscribers())
	s.Publish(2)
}

func TestSubjectConcurrentPublish(t *testing.T) {
	s := NewSubject(0)
	ch, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Publish(j)
			}
		}()
	}
	wg.Wait()
	v, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, s.Value(), v)
}
