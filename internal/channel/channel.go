package channel

import (
	"context"
	"errors"
	"sync"
)

var ErrJoinFailed = errors.New("channel join failed")

// Observer receives channel events. Callbacks may arrive on a
// provider-owned goroutine; implementations must not assume affinity.
type Observer interface {
	JoinSuccess()
	ParticipantJoined(id, name string)
	ParticipantLeft(id string)
	SpeakingChanged(id string, speaking bool)
	AllParticipantsLeft()
	Error(err error)
}

// Connection is one audio-channel connection. The session service owns the
// single live connection; anyone else must borrow it through an
// ObserverHandle rather than installing observers ad hoc.
type Connection interface {
	// Join starts joining asynchronously; completion is reported to the
	// installed observer as JoinSuccess or Error. A non-nil return means
	// the attempt could not even be issued.
	Join(ctx context.Context, channelID, token, uid string) error
	Leave()
	ParticipantCount() int
	// SetObserver installs obs and returns the previously installed
	// observer (nil if none).
	SetObserver(obs Observer) Observer
}

// NopObserver is an Observer with empty methods, for embedding.
type NopObserver struct{}

func (NopObserver) JoinSuccess()                       {}
func (NopObserver) ParticipantJoined(id, name string)  {}
func (NopObserver) ParticipantLeft(id string)          {}
func (NopObserver) SpeakingChanged(id string, sp bool) {}
func (NopObserver) AllParticipantsLeft()               {}
func (NopObserver) Error(err error)                    {}

// ObserverHandle is a borrow of a connection's observer slot: it remembers
// whatever was installed before and puts it back on Restore. Restore is
// idempotent, so it can sit in a defer and also be called early.
type ObserverHandle struct {
	conn     Connection
	saved    Observer
	mu       sync.Mutex
	restored bool
}

// Borrow installs temp on conn and returns a handle holding the previous
// observer.
func Borrow(conn Connection, temp Observer) *ObserverHandle {
	return &ObserverHandle{conn: conn, saved: conn.SetObserver(temp)}
}

// Restore puts the saved observer back. Only the first call has effect.
func (h *ObserverHandle) Restore() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.restored {
		return
	}
	h.restored = true
	h.conn.SetObserver(h.saved)
}

// Saved exposes the borrowed-over observer, mainly for tests asserting the
// restore discipline.
func (h *ObserverHandle) Saved() Observer {
	return h.saved
}
