package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/channel"
)

// ErrProbeTimeout reports that a probe exceeded its total allowance.
// Callers treat it like any other probe failure: clear the session.
var ErrProbeTimeout = errors.New("occupancy probe timed out")

type OutcomeKind string

const (
	Occupied OutcomeKind = "occupied"
	Empty    OutcomeKind = "empty"
	Failed   OutcomeKind = "failed"
)

// Outcome is the single result of one probe run.
type Outcome struct {
	Kind  OutcomeKind
	Count int
	Err   error
}

// Target identifies the channel to probe and the credentials to probe it
// with.
type Target struct {
	ChannelID   string
	AccessToken string
	LocalUID    string
}

// Prober verifies that a channel actually has participants before anything
// user-visible happens. It borrows the connection's observer slot for the
// duration of one run and always puts the previous observer back,
// whichever way the run ends.
type Prober struct {
	discoveryDelay time.Duration
	timeout        time.Duration
}

func New(discoveryDelay, timeout time.Duration) *Prober {
	return &Prober{discoveryDelay: discoveryDelay, timeout: timeout}
}

// probeObserver captures join completion and provider errors for one run.
type probeObserver struct {
	channel.NopObserver
	joined chan struct{}
	errc   chan error
}

func (o *probeObserver) JoinSuccess() {
	select {
	case o.joined <- struct{}{}:
	default:
	}
}

func (o *probeObserver) Error(err error) {
	select {
	case o.errc <- err:
	default:
	}
}

// Run probes target over conn and blocks until one outcome is known.
// Callers that must not block run it in a goroutine.
//
// With ownsJoin true (recovery path) the probe joins the channel itself
// and leaves it again before returning. With ownsJoin false the caller has
// already joined and keeps the connection afterwards; the probe only
// borrows the observer slot.
//
// The discovery delay is a heuristic allowance for participant-presence
// propagation, not a correctness guarantee: a count read after it can
// still be momentarily wrong.
func (p *Prober) Run(ctx context.Context, conn channel.Connection, target Target, ownsJoin bool) Outcome {
	id := uuid.New().String()[:8]
	start := time.Now()
	out := p.run(ctx, conn, target, ownsJoin)

	metricOutcomes.WithLabelValues(string(out.Kind)).Inc()
	metricDuration.Observe(float64(time.Since(start).Milliseconds()))
	log.Info().
		Str("probe_id", id).
		Str("channel_id", target.ChannelID).
		Str("outcome", string(out.Kind)).
		Int("count", out.Count).
		Err(out.Err).
		Msg("occupancy probe finished")
	return out
}

func (p *Prober) run(ctx context.Context, conn channel.Connection, target Target, ownsJoin bool) Outcome {
	obs := &probeObserver{
		joined: make(chan struct{}, 1),
		errc:   make(chan error, 1),
	}

	// Observer restoration must be the last thing that happens, so the
	// leave below is still watched by the temporary observer.
	handle := channel.Borrow(conn, obs)
	defer handle.Restore()

	total := time.NewTimer(p.timeout)
	defer total.Stop()

	if ownsJoin {
		defer conn.Leave()
		if err := conn.Join(ctx, target.ChannelID, target.AccessToken, target.LocalUID); err != nil {
			return Outcome{Kind: Failed, Err: err}
		}
		select {
		case <-obs.joined:
		case err := <-obs.errc:
			return Outcome{Kind: Failed, Err: err}
		case <-total.C:
			return Outcome{Kind: Failed, Err: ErrProbeTimeout}
		case <-ctx.Done():
			return Outcome{Kind: Failed, Err: ctx.Err()}
		}
	}

	discovery := time.NewTimer(p.discoveryDelay)
	defer discovery.Stop()
	select {
	case <-discovery.C:
	case err := <-obs.errc:
		return Outcome{Kind: Failed, Err: fmt.Errorf("provider error during discovery: %w", err)}
	case <-total.C:
		return Outcome{Kind: Failed, Err: ErrProbeTimeout}
	case <-ctx.Done():
		return Outcome{Kind: Failed, Err: ctx.Err()}
	}

	if count := conn.ParticipantCount(); count > 0 {
		return Outcome{Kind: Occupied, Count: count}
	}
	return Outcome{Kind: Empty}
}
