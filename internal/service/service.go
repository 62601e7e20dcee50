package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/channel"
	"pushtalk/device/internal/config"
	"pushtalk/device/internal/lease"
	"pushtalk/device/internal/notify"
	"pushtalk/device/internal/probe"
	"pushtalk/device/internal/session"
	"pushtalk/device/internal/types"
	"pushtalk/device/internal/uiloop"
)

// ErrBusy means a session attempt is already in flight. One session per
// device; a second push while one runs is dropped.
var ErrBusy = errors.New("session service already running")

type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStarting Phase = "STARTING"
	PhaseRunning  Phase = "RUNNING"
	PhaseStopping Phase = "STOPPING"
	PhaseStopped  Phase = "STOPPED"
)

// DialFunc opens a fresh connection to the audio gateway.
type DialFunc func(ctx context.Context) (channel.Connection, error)

// Service is the only component allowed to hold the live channel
// connection and the execution lease. Provider callbacks, probe results,
// lease expiry and UI leave requests all funnel into one internal event
// channel consumed by a single goroutine, so no handler ever races
// another.
type Service struct {
	cfg    config.Config
	mach   *session.Machine
	prober *probe.Prober
	ui     *uiloop.Loop
	dial   DialFunc

	mu     sync.Mutex
	phase  Phase
	conn   channel.Connection
	lease  *lease.Lease
	filter *notify.Filter
	req    types.JoinRequest
	events chan svcEvent
	done   chan struct{}
}

func New(cfg config.Config, mach *session.Machine, prober *probe.Prober, ui *uiloop.Loop, dial DialFunc) *Service {
	return &Service{
		cfg:    cfg,
		mach:   mach,
		prober: prober,
		ui:     ui,
		dial:   dial,
		phase:  PhaseIdle,
	}
}

// internal events

type svcEvent interface{ svcEvent() }

type evJoinSuccess struct{}
type evProviderError struct{ err error }
type evParticipantJoined struct{ id, name string }
type evParticipantLeft struct{ id string }
type evSpeaking struct {
	id       string
	speaking bool
}
type evAllLeft struct{}
type evProbeDone struct{ out probe.Outcome }
type evLeaveRequest struct{}
type evLeaseExpired struct{}

func (evJoinSuccess) svcEvent()       {}
func (evProviderError) svcEvent()     {}
func (evParticipantJoined) svcEvent() {}
func (evParticipantLeft) svcEvent()   {}
func (evSpeaking) svcEvent()          {}
func (evAllLeft) svcEvent()           {}
func (evProbeDone) svcEvent()         {}
func (evLeaveRequest) svcEvent()      {}
func (evLeaseExpired) svcEvent()      {}

// observerBridge is the primary observer: it forwards provider callbacks
// (which arrive on provider goroutines) into the service's event channel.
type observerBridge struct{ s *Service }

func (b observerBridge) JoinSuccess()                      { b.s.post(evJoinSuccess{}) }
func (b observerBridge) ParticipantJoined(id, name string) { b.s.post(evParticipantJoined{id, name}) }
func (b observerBridge) ParticipantLeft(id string)         { b.s.post(evParticipantLeft{id}) }
func (b observerBridge) SpeakingChanged(id string, sp bool) {
	b.s.post(evSpeaking{id, sp})
}
func (b observerBridge) AllParticipantsLeft() { b.s.post(evAllLeft{}) }
func (b observerBridge) Error(err error)      { b.s.post(evProviderError{err}) }

// uiSink adapts the notify filter's decisions onto the UI loop.
type uiSink struct{ ui *uiloop.Loop }

func (u uiSink) ShowSpeaking(name string)   { u.ui.Post(uiloop.ShowSpeaking{Name: name}) }
func (u uiSink) ClearSpeaking()             { u.ui.Post(uiloop.ClearSpeaking{}) }
func (u uiSink) ShowDisconnect(name string) { u.ui.Post(uiloop.ShowDisconnect{Name: name}) }

// Start begins a push-triggered session: persist JOINING, join the
// channel, and verify occupancy before anything user-visible happens.
// A join that cannot even be issued is non-fatal and silent; this is
// unattended auto-connect, not a user action to report failure against.
func (s *Service) Start(ctx context.Context, req types.JoinRequest) error {
	return s.start(ctx, req, true)
}

// Resume re-attaches to a session record recovered from the store. The
// record stays as persisted; the join and inline probe run as in Start.
func (s *Service) Resume(ctx context.Context, sess *types.Session) error {
	s.mach.Adopt(sess)
	req := types.JoinRequest{
		ChannelID:   sess.ChannelID,
		AccessToken: sess.AccessToken,
		LocalUID:    sess.LocalUID,
		RemoteName:  sess.RemoteName,
		RemotePhoto: sess.RemotePhoto,
	}
	return s.start(ctx, req, false)
}

func (s *Service) start(ctx context.Context, req types.JoinRequest, create bool) error {
	s.mu.Lock()
	if s.phase == PhaseStarting || s.phase == PhaseRunning || s.phase == PhaseStopping {
		s.mu.Unlock()
		return ErrBusy
	}
	s.phase = PhaseStarting
	s.req = req
	s.events = make(chan svcEvent, 32)
	s.done = make(chan struct{})
	s.mu.Unlock()

	metricStarts.Inc()

	// Lease before any network work: once joined we must not be preempted
	// mid-teardown.
	l := lease.Acquire(s.cfg.Timing.LeaseTTL, func() { s.post(evLeaseExpired{}) })

	if create {
		if _, err := s.mach.Create(req, time.Now()); err != nil {
			// Fail closed: without a durable record we do not join.
			l.Release()
			s.setPhase(PhaseStopped)
			close(s.done)
			return err
		}
	}

	conn, err := s.dial(ctx)
	if err != nil {
		metricJoinFailures.Inc()
		s.mach.Discard()
		l.Release()
		s.setPhase(PhaseStopped)
		close(s.done)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lease = l
	s.filter = notify.NewFilter(req.LocalUID, s.cfg.Notify.FallbackName, uiSink{s.ui})
	// The remote party named in the push is the session's last known
	// speaker until someone actually speaks.
	s.filter.SetLastSpeaker("", req.RemoteName)
	s.mu.Unlock()

	conn.SetObserver(observerBridge{s})
	go s.run(ctx)

	if err := conn.Join(ctx, req.ChannelID, req.AccessToken, req.LocalUID); err != nil {
		// Delivered through the event loop so teardown runs exactly once.
		s.post(evProviderError{err})
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context) {
	renew := time.NewTicker(s.cfg.Timing.LeaseTTL / 2)
	defer renew.Stop()
	defer close(s.done)

	for {
		select {
		case ev := <-s.events:
			if stop := s.handle(ctx, ev); stop {
				return
			}
		case <-renew.C:
			s.mu.Lock()
			l := s.lease
			s.mu.Unlock()
			if l != nil && !l.Renew() {
				// Lease lapsed between ticks; expiry event is on its way.
				continue
			}
		}
	}
}

// handle runs on the single service goroutine. Returning true ends the
// loop after teardown.
func (s *Service) handle(ctx context.Context, ev svcEvent) bool {
	switch ev := ev.(type) {
	case evJoinSuccess:
		// Inline probe on the live join: the service stays the owner, the
		// probe only borrows the observer slot.
		s.mu.Lock()
		conn := s.conn
		target := probe.Target{
			ChannelID:   s.req.ChannelID,
			AccessToken: s.req.AccessToken,
			LocalUID:    s.req.LocalUID,
		}
		s.mu.Unlock()
		if conn == nil {
			break
		}
		go func() {
			out := s.prober.Run(ctx, conn, target, false)
			s.post(evProbeDone{out})
		}()

	case evProbeDone:
		if ev.out.Kind == probe.Occupied {
			if err := s.mach.Transition(types.StateActive); err != nil {
				break
			}
			s.setPhase(PhaseRunning)
			s.ui.Post(uiloop.ShowSessionUI{
				DisplayName: s.req.RemoteName,
				PhotoRef:    s.req.RemotePhoto,
				IsMuted:     false,
			})
			log.Info().Str("channel_id", s.req.ChannelID).Int("participants", ev.out.Count).Msg("session active")
			break
		}
		// Empty or failed: the push was stale or the channel is dead.
		// Leave silently, no UI, no notification.
		log.Info().Str("channel_id", s.req.ChannelID).Str("outcome", string(ev.out.Kind)).Msg("leaving unoccupied channel")
		s.conn.Leave()
		s.mach.Discard()
		return s.teardown()

	case evParticipantJoined:
		s.filter.AddParticipant(ev.id, ev.name)

	case evSpeaking:
		s.filter.OnSpeakingChanged(ev.id, ev.speaking)

	case evParticipantLeft:
		s.filter.OnParticipantLeft(ev.id)

	case evAllLeft, evLeaveRequest:
		return s.endSession()

	case evProviderError:
		if s.CurrentPhase() == PhaseRunning {
			// The one legitimate in-call failure surface.
			metricProviderErrors.Inc()
			log.Error().Err(ev.err).Msg("provider error mid-session")
			s.mach.Terminate()
			s.conn.Leave()
			s.ui.Post(uiloop.SessionEnded{})
			return s.teardown()
		}
		// Failure before the session went active: silent clear.
		metricJoinFailures.Inc()
		log.Warn().Err(ev.err).Str("channel_id", s.req.ChannelID).Msg("join failed, discarding session")
		s.conn.Leave()
		s.mach.Discard()
		return s.teardown()

	case evLeaseExpired:
		// Out of execution time. Leave the channel but keep the record:
		// the recovery coordinator re-verifies it on the next attach.
		metricLeaseExpiries.Inc()
		log.Warn().Str("channel_id", s.req.ChannelID).Msg("lease expired, suspending session")
		s.conn.Leave()
		return s.teardown()
	}
	return false
}

// endSession is the ordered teardown for a normal end: everyone left or
// the user asked to leave.
func (s *Service) endSession() bool {
	s.setPhase(PhaseStopping)
	cur := s.mach.Current()
	if cur == nil || cur.State == types.StateJoining {
		// Leave requested before occupancy was ever confirmed: the
		// session never became user-visible, so it dies silently.
		s.conn.Leave()
		s.mach.Discard()
		s.filter.Reset()
		return s.teardown()
	}
	_ = s.mach.Transition(types.StateEnding)
	s.conn.Leave()
	_ = s.mach.Transition(types.StateEnded)
	s.mach.Clear()
	s.filter.Reset()
	return s.teardown()
}

func (s *Service) teardown() bool {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.SetObserver(nil)
	}
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
	s.conn = nil
	s.phase = PhaseStopped
	s.mu.Unlock()
	return true
}

// RequestLeave is the inbound UI signal: the user wants out. An in-flight
// join or probe is not aborted; the leave lands after it completes.
func (s *Service) RequestLeave() {
	s.post(evLeaveRequest{})
}

// RunningFor reports whether this service currently holds a session
// attempt for channelID. Recovery uses it to avoid double-joining.
func (s *Service) RunningFor(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.phase == PhaseStarting || s.phase == PhaseRunning
	return active && s.req.ChannelID == channelID
}

func (s *Service) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Stop requests a leave and waits for the service goroutine to finish.
// Used for daemon shutdown.
func (s *Service) Stop(timeout time.Duration) {
	s.mu.Lock()
	if s.phase != PhaseStarting && s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.mu.Unlock()

	s.post(evLeaveRequest{})
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("session service did not stop in time")
	}
}

// Done exposes completion of the current run, mainly for tests.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Service) post(ev svcEvent) {
	s.mu.Lock()
	ch := s.events
	phase := s.phase
	s.mu.Unlock()
	if ch == nil || phase == PhaseStopped || phase == PhaseIdle {
		return
	}
	select {
	case ch <- ev:
	default:
		log.Warn().Msgf("service event queue full, dropping %T", ev)
	}
}

func (s *Service) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}
