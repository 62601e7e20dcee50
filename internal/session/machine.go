package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/types"
)

// ErrBadTransition reports a transition outside the
// JOINING→ACTIVE→ENDING→ENDED path.
var ErrBadTransition = errors.New("invalid session state transition")

// Store is what the machine needs from persistence. *store.Store satisfies
// it; tests use an in-memory fake.
type Store interface {
	Get() (*types.Session, error)
	Put(*types.Session) error
	Clear() error
}

var validNext = map[types.SessionState]types.SessionState{
	types.StateJoining: types.StateActive,
	types.StateActive:  types.StateEnding,
	types.StateEnding:  types.StateEnded,
}

// Machine owns every mutation of the persisted session record. Create
// writes JOINING before the caller touches the network, so a crash between
// persist and join leaves a record recovery can re-verify.
type Machine struct {
	mu     sync.Mutex
	store  Store
	strict bool
	cur    *types.Session
}

func NewMachine(store Store, strict bool) *Machine {
	m := &Machine{store: store, strict: strict}
	cur, err := store.Get()
	if err != nil {
		// Fail closed: an unreadable store means no session exists.
		log.Warn().Err(err).Msg("session store unreadable, assuming no session")
		cur = nil
	}
	m.cur = cur
	return m
}

// Create persists a fresh JOINING record for req. It must complete before
// any channel-join call is issued.
func (m *Machine) Create(req types.JoinRequest, now time.Time) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		// Creating a new session implies the prior one was torn down; a
		// leftover record here is stale state being replaced.
		log.Warn().
			Str("old_channel_id", m.cur.ChannelID).
			Str("old_state", string(m.cur.State)).
			Msg("replacing leftover session record")
	}
	sess := req.Session(now)
	if err := m.store.Put(sess); err != nil {
		return nil, fmt.Errorf("persist joining session: %w", err)
	}
	m.cur = sess
	metricTransitions.WithLabelValues("", string(types.StateJoining)).Inc()
	return sess, nil
}

// Transition moves the session one step along the lifecycle path and
// persists the new state. Requesting the current state is a no-op, which
// keeps recovery idempotent. Anything else is a programming error: panic
// in strict mode, log-and-no-op otherwise.
func (m *Machine) Transition(to types.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return m.violation("none", to)
	}
	if m.cur.State == to {
		return nil
	}
	if validNext[m.cur.State] != to {
		return m.violation(string(m.cur.State), to)
	}
	from := m.cur.State
	m.cur.State = to
	if err := m.store.Put(m.cur); err != nil {
		m.cur.State = from
		return fmt.Errorf("persist state %s: %w", to, err)
	}
	metricTransitions.WithLabelValues(string(from), string(to)).Inc()
	log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("session transition")
	return nil
}

func (m *Machine) violation(from string, to types.SessionState) error {
	err := fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	if m.strict {
		panic(err)
	}
	log.Error().Err(err).Msg("ignoring out-of-order session transition")
	return err
}

// Discard silently drops the session without passing through ENDED. This
// is the path for empty or failed occupancy probes and join failures;
// nothing user-visible may follow it.
func (m *Machine) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		metricDiscards.Inc()
		log.Info().Str("channel_id", m.cur.ChannelID).Msg("discarding session")
	}
	m.clearLocked()
}

// Terminate forces ENDED and clears the record, bypassing ENDING. Used for
// mid-call provider errors, where there is no leave confirmation to wait
// for.
func (m *Machine) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		metricTransitions.WithLabelValues(string(m.cur.State), string(types.StateEnded)).Inc()
	}
	m.clearLocked()
}

// Clear deletes the record unconditionally.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Machine) clearLocked() {
	if err := m.store.Clear(); err != nil {
		// Nothing to do but log; the next Create replaces the row anyway.
		log.Error().Err(err).Msg("failed to clear session store")
	}
	m.cur = nil
}

// Current returns a copy of the in-memory record, or nil.
func (m *Machine) Current() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	c := *m.cur
	return &c
}

// Adopt loads an existing persisted record into the machine without
// rewriting it. Recovery uses this to resume a session that was created by
// a previous process.
func (m *Machine) Adopt(sess *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *sess
	m.cur = &c
}
