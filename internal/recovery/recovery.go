package recovery

import (
	"context"

	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/channel"
	"pushtalk/device/internal/probe"
	"pushtalk/device/internal/service"
	"pushtalk/device/internal/session"
	"pushtalk/device/internal/types"
)

// Coordinator re-validates a persisted session whenever the UI layer
// (re)attaches to the process. A record that survived process death is
// ambiguous: the channel may have emptied in the meantime. The coordinator
// probes before anything user-visible is allowed to happen, turning an
// ambiguous resume into a verified one.
type Coordinator struct {
	store  session.Store
	mach   *session.Machine
	prober *probe.Prober
	svc    *service.Service
	dial   service.DialFunc
}

func New(store session.Store, mach *session.Machine, prober *probe.Prober, svc *service.Service, dial service.DialFunc) *Coordinator {
	return &Coordinator{store: store, mach: mach, prober: prober, svc: svc, dial: dial}
}

// Run reads the store and either resumes a verified session or clears a
// dead one. It is idempotent: a second run with no intervening change
// reaches the same outcome and never double-joins.
func (c *Coordinator) Run(ctx context.Context) {
	rec, err := c.store.Get()
	if err != nil {
		// Fail closed: unreadable state is no state.
		log.Warn().Err(err).Msg("recovery: store unreadable, skipping")
		return
	}
	if rec == nil {
		return
	}

	switch rec.State {
	case types.StateJoining, types.StateActive:
		// fall through to verification
	default:
		// ENDING or ENDED left behind mid-teardown: finish the cleanup.
		log.Info().Str("state", string(rec.State)).Msg("recovery: clearing half-torn-down session")
		c.mach.Clear()
		return
	}

	if c.svc.RunningFor(rec.ChannelID) {
		// The service survived; nothing to recover.
		log.Debug().Str("channel_id", rec.ChannelID).Msg("recovery: session already live")
		return
	}

	metricRuns.Inc()
	log.Info().
		Str("channel_id", rec.ChannelID).
		Str("state", string(rec.State)).
		Msg("recovery: verifying persisted session")

	// The probe owns its own short-lived connection here: the service may
	// be dead, so the probe joins and leaves the channel itself.
	conn, err := c.dial(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("recovery: cannot reach gateway, clearing session")
		metricCleared.Inc()
		c.mach.Clear()
		return
	}
	defer closeIfCloser(conn)

	out := c.prober.Run(ctx, conn, probe.Target{
		ChannelID:   rec.ChannelID,
		AccessToken: rec.AccessToken,
		LocalUID:    rec.LocalUID,
	}, true)

	if out.Kind != probe.Occupied {
		// Empty or failed: no UI, no notification, just forget it.
		metricCleared.Inc()
		c.mach.Clear()
		return
	}

	metricResumed.Inc()
	if err := c.svc.Resume(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("recovery: resume failed")
	}
}

func closeIfCloser(conn channel.Connection) {
	if c, ok := conn.(interface{ Close() }); ok {
		c.Close()
	}
}
