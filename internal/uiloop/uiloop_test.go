package uiloop

import (
	"sync"
	"testing"
	"time"
)

func TestEventsDeliveredInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	l := New(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	l.Start()

	l.Post(ShowSessionUI{DisplayName: "Ada"})
	l.Post(ShowSpeaking{Name: "Ada"})
	l.Post(ClearSpeaking{})
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if _, ok := got[0].(ShowSessionUI); !ok {
		t.Fatalf("order broken: %T first", got[0])
	}
	if _, ok := got[2].(ClearSpeaking); !ok {
		t.Fatalf("order broken: %T last", got[2])
	}
}

func TestPostAfterStopIsSafe(t *testing.T) {
	l := New(func(Event) {})
	l.Start()
	l.Stop()
	// Must not panic on a closed queue.
	l.Post(ShowSpeaking{Name: "x"})
	l.Stop()
}

func TestHandlerRunsOnSingleGoroutine(t *testing.T) {
	// Concurrent posters; the handler must never run reentrantly.
	var inside int32
	var mu sync.Mutex
	violated := false
	l := New(func(Event) {
		mu.Lock()
		inside++
		if inside > 1 {
			violated = true
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inside--
		mu.Unlock()
	})
	l.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				l.Post(ClearSpeaking{})
			}
		}()
	}
	wg.Wait()
	l.Stop()

	if violated {
		t.Fatalf("handler ran concurrently")
	}
}
