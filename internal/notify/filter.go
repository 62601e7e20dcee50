package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Sink receives notification decisions. Rendering is someone else's
// problem; the filter only decides whether and with what name.
type Sink interface {
	ShowSpeaking(name string)
	ClearSpeaking()
	ShowDisconnect(name string)
}

// Speaker is the most recent remote party associated with the session:
// on the receive path, the one whose push triggered the join. Its ID
// distinguishes initiator from receiver when a disconnect is decided.
type Speaker struct {
	ID   string
	Name string
}

// Filter applies the self-filtering and identity-fallback rules to
// channel events. One Filter serves one session; Reset between sessions.
type Filter struct {
	mu       sync.Mutex
	localUID string
	fallback string
	sink     Sink

	directory     map[string]string // participant id -> best known name
	last          *Speaker
	activeSpeaker string
}

func NewFilter(localUID, fallbackName string, sink Sink) *Filter {
	return &Filter{
		localUID:  localUID,
		fallback:  fallbackName,
		sink:      sink,
		directory: make(map[string]string),
	}
}

// AddParticipant records a participant's display name as it becomes
// known. Empty names do not overwrite an existing entry.
func (f *Filter) AddParticipant(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "" || f.directory[id] == "" {
		f.directory[id] = name
	}
}

// SetLastSpeaker records the remote party this session is about.
func (f *Filter) SetLastSpeaker(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &Speaker{ID: id, Name: name}
}

// OnSpeakingChanged shows or clears the transient speaking indicator.
// Local speech never notifies.
func (f *Filter) OnSpeakingChanged(id string, speaking bool) {
	f.mu.Lock()
	if id == f.localUID {
		f.mu.Unlock()
		return
	}
	if speaking {
		f.activeSpeaker = id
		f.last = &Speaker{ID: id, Name: f.directory[id]}
		name := f.nameLocked(id)
		f.mu.Unlock()
		f.sink.ShowSpeaking(name)
		return
	}
	if f.activeSpeaker == id {
		f.activeSpeaker = ""
	}
	f.mu.Unlock()
	f.sink.ClearSpeaking()
}

// OnParticipantLeft clears any speaking indicator for the leaver, then
// decides the disconnect indicator. When the stored last speaker is the
// local device itself (the initiator case), the disconnect stays silent.
// The last-speaker slot is consumed either way.
func (f *Filter) OnParticipantLeft(id string) {
	f.mu.Lock()
	if f.activeSpeaker == id {
		f.activeSpeaker = ""
		f.mu.Unlock()
		f.sink.ClearSpeaking()
		f.mu.Lock()
	}

	last := f.last
	f.last = nil

	if last != nil && last.ID == f.localUID {
		f.mu.Unlock()
		log.Debug().Str("participant", id).Msg("suppressing disconnect indicator for initiator")
		return
	}

	name := ""
	if last != nil {
		name = last.Name
	}
	if name == "" {
		name = f.directory[id]
	}
	if name == "" {
		name = f.fallback
	}
	f.mu.Unlock()
	f.sink.ShowDisconnect(name)
}

// Reset clears all per-session state. Run it when a session ends.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directory = make(map[string]string)
	f.last = nil
	f.activeSpeaker = ""
}

func (f *Filter) nameLocked(id string) string {
	if n := f.directory[id]; n != "" {
		return n
	}
	return f.fallback
}
