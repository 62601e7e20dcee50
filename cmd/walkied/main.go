package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/api"
	"pushtalk/device/internal/channel"
	"pushtalk/device/internal/config"
	"pushtalk/device/internal/ingress"
	"pushtalk/device/internal/probe"
	"pushtalk/device/internal/push"
	"pushtalk/device/internal/recovery"
	"pushtalk/device/internal/service"
	"pushtalk/device/internal/session"
	"pushtalk/device/internal/store"
	"pushtalk/device/internal/uiloop"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	if lvl, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open session store")
	}
	defer st.Close()

	mach := session.NewMachine(st, cfg.Session.StrictTransitions)
	prober := probe.New(cfg.Timing.DiscoveryDelay, cfg.Timing.ProbeTimeout)

	// A headless device: UI-trigger events are logged where a phone would
	// render screens and indicators.
	ui := uiloop.New(renderEvent)
	ui.Start()
	defer ui.Stop()

	dial := func(ctx context.Context) (channel.Connection, error) {
		return channel.Dial(ctx, cfg.Gateway.URL)
	}
	svc := service.New(cfg, mach, prober, ui, dial)

	// Re-validate whatever a previous process left behind before any new
	// pushes are acted on.
	coord := recovery.New(st, mach, prober, svc, dial)
	coord.Run(ctx)

	validator := ingress.NewValidator(cfg.Timing.FreshnessWindow)
	receiver := push.NewReceiver(cfg.Relay.URL, func(payload map[string]string, receivedAt time.Time) {
		req, err := validator.Validate(payload, receivedAt)
		if err != nil {
			log.Debug().Err(err).Msg("push dropped")
			return
		}
		if err := svc.Start(ctx, *req); err != nil {
			// Best-effort auto-connect; nothing to surface.
			log.Warn().Err(err).Str("channel_id", req.ChannelID).Msg("session start failed")
		}
	})
	go receiver.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(api.NewHandlers(st, receiver, svc)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		svc.Stop(5 * time.Second)
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("walkied started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

func renderEvent(ev uiloop.Event) {
	switch ev := ev.(type) {
	case uiloop.ShowSessionUI:
		log.Info().Str("name", ev.DisplayName).Bool("muted", ev.IsMuted).Msg("UI: show session screen")
	case uiloop.ShowSpeaking:
		log.Info().Str("name", ev.Name).Msg("UI: speaking indicator on")
	case uiloop.ClearSpeaking:
		log.Info().Msg("UI: speaking indicator off")
	case uiloop.ShowDisconnect:
		log.Info().Str("name", ev.Name).Msg("UI: disconnect indicator")
	case uiloop.SessionEnded:
		log.Info().Msg("UI: call ended")
	}
}
