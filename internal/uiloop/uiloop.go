package uiloop

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is anything delivered to the UI layer. All visible effects go
// through one Loop, which stands in for the platform's single UI-affinity
// thread: components post from whatever goroutine they run on and the
// handler runs everything in order on one goroutine.
type Event interface{ uiEvent() }

// ShowSessionUI asks the UI layer to present the in-call screen.
type ShowSessionUI struct {
	DisplayName string
	PhotoRef    string
	IsMuted     bool
}

// ShowSpeaking shows the transient speaking indicator for name.
type ShowSpeaking struct{ Name string }

// ClearSpeaking removes the speaking indicator.
type ClearSpeaking struct{}

// ShowDisconnect shows the disconnect indicator for name.
type ShowDisconnect struct{ Name string }

// SessionEnded tells the UI the call is over (the one user-facing failure
// surface; everything else ends silently).
type SessionEnded struct{}

func (ShowSessionUI) uiEvent()  {}
func (ShowSpeaking) uiEvent()   {}
func (ClearSpeaking) uiEvent()  {}
func (ShowDisconnect) uiEvent() {}
func (SessionEnded) uiEvent()   {}

// Loop is the single outbound queue into the UI layer.
type Loop struct {
	handler func(Event)
	ch      chan Event

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func New(handler func(Event)) *Loop {
	return &Loop{
		handler: handler,
		ch:      make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

// Start begins draining on a dedicated goroutine.
func (l *Loop) Start() {
	go func() {
		defer close(l.done)
		for ev := range l.ch {
			l.handler(ev)
		}
	}()
}

// Post queues an event. It never blocks the caller: if the UI queue is
// full, the event is dropped and logged, matching how a saturated UI
// thread would behave.
func (l *Loop) Post(ev Event) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	select {
	case l.ch <- ev:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		log.Warn().Msgf("ui queue full, dropping %T", ev)
	}
}

// Stop closes the queue and waits for queued events to drain.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	close(l.ch)
	l.mu.Unlock()
	<-l.done
}
