package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pushtalk/device/internal/channel"
	"pushtalk/device/internal/config"
	"pushtalk/device/internal/probe"
	"pushtalk/device/internal/session"
	"pushtalk/device/internal/types"
	"pushtalk/device/internal/uiloop"
)

// Probe-driven scenarios here depend on the (shortened) discovery window
// elapsing, so they are timing-sensitive by nature.

func testConfig() config.Config {
	var cfg config.Config
	cfg.Timing.FreshnessWindow = 15 * time.Second
	cfg.Timing.DiscoveryDelay = 10 * time.Millisecond
	cfg.Timing.ProbeTimeout = 500 * time.Millisecond
	cfg.Timing.LeaseTTL = time.Second
	cfg.Notify.FallbackName = "Someone"
	return cfg
}

type memStore struct {
	mu  sync.Mutex
	rec *types.Session
}

func (f *memStore) Get() (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		return nil, nil
	}
	c := *f.rec
	return &c, nil
}

func (f *memStore) Put(s *types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.rec = &c
	return nil
}

func (f *memStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec = nil
	return nil
}

// fakeConn simulates the gateway. Join completes asynchronously to the
// installed observer, like real provider callbacks.
type fakeConn struct {
	mu       sync.Mutex
	observer channel.Observer
	count    int
	joins    int
	leaves   int
	joinErr  error
}

func (f *fakeConn) Join(ctx context.Context, channelID, token, uid string) error {
	f.mu.Lock()
	f.joins++
	err := f.joinErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	go func() {
		if obs := f.current(); obs != nil {
			obs.JoinSuccess()
		}
	}()
	return nil
}

func (f *fakeConn) Leave() {
	f.mu.Lock()
	f.leaves++
	f.mu.Unlock()
}

func (f *fakeConn) ParticipantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeConn) SetObserver(obs channel.Observer) channel.Observer {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.observer
	f.observer = obs
	return prev
}

func (f *fakeConn) current() channel.Observer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observer
}

func (f *fakeConn) emit(fn func(channel.Observer)) {
	if obs := f.current(); obs != nil {
		fn(obs)
	}
}

type harness struct {
	svc    *Service
	store  *memStore
	mach   *session.Machine
	conn   *fakeConn
	uiEvts chan uiloop.Event
	ui     *uiloop.Loop
}

func newHarness(t *testing.T, conn *fakeConn) *harness {
	t.Helper()
	cfg := testConfig()
	st := &memStore{}
	mach := session.NewMachine(st, true)
	prober := probe.New(cfg.Timing.DiscoveryDelay, cfg.Timing.ProbeTimeout)

	uiEvts := make(chan uiloop.Event, 32)
	ui := uiloop.New(func(ev uiloop.Event) { uiEvts <- ev })
	ui.Start()
	t.Cleanup(ui.Stop)

	dial := func(ctx context.Context) (channel.Connection, error) { return conn, nil }
	return &harness{
		svc:    New(cfg, mach, prober, ui, dial),
		store:  st,
		mach:   mach,
		conn:   conn,
		uiEvts: uiEvts,
		ui:     ui,
	}
}

func joinReq() types.JoinRequest {
	return types.JoinRequest{
		ChannelID:   "c1",
		AccessToken: "tok",
		LocalUID:    "me",
		RemoteName:  "Ada",
		RemotePhoto: "ref",
		SentAt:      time.Now(),
	}
}

func (h *harness) waitUI(t *testing.T) uiloop.Event {
	t.Helper()
	select {
	case ev := <-h.uiEvts:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ui event")
		return nil
	}
}

func (h *harness) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.svc.CurrentPhase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, stuck at %s", want, h.svc.CurrentPhase())
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not stop")
	}
}

func TestOccupiedChannelGoesActive(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 2})

	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ev := h.waitUI(t)
	show, ok := ev.(uiloop.ShowSessionUI)
	if !ok {
		t.Fatalf("expected ShowSessionUI first, got %T", ev)
	}
	if show.DisplayName != "Ada" || show.PhotoRef != "ref" {
		t.Fatalf("ui trigger carries wrong identity: %+v", show)
	}

	h.waitPhase(t, PhaseRunning)
	rec, _ := h.store.Get()
	if rec == nil || rec.State != types.StateActive {
		t.Fatalf("record should be ACTIVE, got %#v", rec)
	}
}

func TestSpeakingIndicatorForRemote(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 2})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.waitUI(t) // ShowSessionUI
	h.waitPhase(t, PhaseRunning)

	h.conn.emit(func(o channel.Observer) { o.ParticipantJoined("p1", "Grace") })
	h.conn.emit(func(o channel.Observer) { o.SpeakingChanged("p1", true) })

	ev := h.waitUI(t)
	sp, ok := ev.(uiloop.ShowSpeaking)
	if !ok || sp.Name != "Grace" {
		t.Fatalf("expected speaking indicator for Grace, got %#v", ev)
	}

	// Local speech never notifies.
	h.conn.emit(func(o channel.Observer) { o.SpeakingChanged("me", true) })
	h.conn.emit(func(o channel.Observer) { o.SpeakingChanged("p1", false) })
	ev = h.waitUI(t)
	if _, ok := ev.(uiloop.ClearSpeaking); !ok {
		t.Fatalf("local speech leaked through the filter: %#v", ev)
	}
}

func TestEmptyChannelDiscardsSilently(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 0})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.waitDone(t)

	if rec, _ := h.store.Get(); rec != nil {
		t.Fatalf("empty channel must clear the record, got %#v", rec)
	}
	if h.conn.leaves == 0 {
		t.Fatalf("service must leave the empty channel")
	}
	select {
	case ev := <-h.uiEvts:
		t.Fatalf("empty channel must produce zero ui events, got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinFailureIsSilent(t *testing.T) {
	h := newHarness(t, &fakeConn{joinErr: errors.New("refused")})
	_ = h.svc.Start(context.Background(), joinReq())

	h.waitDone(t)

	if rec, _ := h.store.Get(); rec != nil {
		t.Fatalf("join failure must clear the record")
	}
	select {
	case ev := <-h.uiEvts:
		t.Fatalf("join failure must be invisible, got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveRequestEndsSession(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 1})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.waitUI(t)
	h.waitPhase(t, PhaseRunning)

	h.svc.RequestLeave()
	h.waitDone(t)

	if rec, _ := h.store.Get(); rec != nil {
		t.Fatalf("leave must clear the record, got %#v", rec)
	}
	if h.conn.leaves == 0 {
		t.Fatalf("leave must reach the provider")
	}
	if h.svc.CurrentPhase() != PhaseStopped {
		t.Fatalf("service should be stopped, is %s", h.svc.CurrentPhase())
	}
}

func TestProviderErrorMidCallEndsSession(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 1})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.waitUI(t)
	h.waitPhase(t, PhaseRunning)

	h.conn.emit(func(o channel.Observer) { o.Error(errors.New("transport lost")) })
	h.waitDone(t)

	if rec, _ := h.store.Get(); rec != nil {
		t.Fatalf("provider error must clear the record")
	}
	ev := h.waitUI(t)
	if _, ok := ev.(uiloop.SessionEnded); !ok {
		t.Fatalf("mid-call failure should surface a generic ended state, got %#v", ev)
	}
}

func TestSecondStartWhileRunningIsRejected(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 1})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.waitPhase(t, PhaseRunning)

	if err := h.svc.Start(context.Background(), joinReq()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAllParticipantsLeftEndsSession(t *testing.T) {
	h := newHarness(t, &fakeConn{count: 1})
	if err := h.svc.Start(context.Background(), joinReq()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.waitUI(t)
	h.waitPhase(t, PhaseRunning)

	h.conn.emit(func(o channel.Observer) { o.AllParticipantsLeft() })
	h.waitDone(t)

	if rec, _ := h.store.Get(); rec != nil {
		t.Fatalf("record must be cleared after everyone left")
	}
}
