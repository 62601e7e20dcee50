package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Store struct {
		Path string
	}
	Relay struct {
		URL string
	}
	Gateway struct {
		URL string
	}
	Timing struct {
		// FreshnessWindow bounds how old a push payload may be before it
		// is dropped instead of acted on.
		FreshnessWindow time.Duration
		// DiscoveryDelay is the wait after a join before trusting the
		// participant count. Empirical, not a guarantee.
		DiscoveryDelay time.Duration
		// ProbeTimeout caps a whole occupancy probe.
		ProbeTimeout time.Duration
		// LeaseTTL is the execution lease duration; renewed while the
		// session service runs.
		LeaseTTL time.Duration
	}
	Session struct {
		// StrictTransitions makes out-of-order state transitions panic
		// instead of logging and no-opping. Enable outside release builds.
		StrictTransitions bool
	}
	Notify struct {
		// FallbackName labels a participant no directory entry exists for.
		FallbackName string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("store.path", "walkie.db")
	v.SetDefault("relay.url", "ws://localhost:9100/feed")
	v.SetDefault("gateway.url", "ws://localhost:9200/channel")

	// Timing constants carried over from observed behavior. Overridable,
	// never hard-coded at call sites.
	v.SetDefault("timing.freshness_window", "15s")
	v.SetDefault("timing.discovery_delay", "800ms")
	v.SetDefault("timing.probe_timeout", "10s")
	v.SetDefault("timing.lease_ttl", "10m")

	v.SetDefault("session.strict_transitions", false)
	v.SetDefault("notify.fallback_name", "Someone")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("store.path", "STORE_PATH")
	v.BindEnv("relay.url", "RELAY_URL")
	v.BindEnv("gateway.url", "GATEWAY_URL")

	v.BindEnv("timing.freshness_window", "FRESHNESS_WINDOW")
	v.BindEnv("timing.discovery_delay", "DISCOVERY_DELAY")
	v.BindEnv("timing.probe_timeout", "PROBE_TIMEOUT")
	v.BindEnv("timing.lease_ttl", "LEASE_TTL")

	v.BindEnv("session.strict_transitions", "STRICT_TRANSITIONS")
	v.BindEnv("notify.fallback_name", "NOTIFY_FALLBACK_NAME")

	var c Config
	c.Server.Port = v.GetString("server.port")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Store.Path = v.GetString("store.path")
	c.Relay.URL = v.GetString("relay.url")
	c.Gateway.URL = v.GetString("gateway.url")

	c.Timing.FreshnessWindow = v.GetDuration("timing.freshness_window")
	c.Timing.DiscoveryDelay = v.GetDuration("timing.discovery_delay")
	c.Timing.ProbeTimeout = v.GetDuration("timing.probe_timeout")
	c.Timing.LeaseTTL = v.GetDuration("timing.lease_ttl")

	c.Session.StrictTransitions = v.GetBool("session.strict_transitions")
	c.Notify.FallbackName = v.GetString("notify.fallback_name")

	log.Info().
		Str("port", c.Server.Port).
		Str("store", c.Store.Path).
		Dur("freshness_window", c.Timing.FreshnessWindow).
		Dur("discovery_delay", c.Timing.DiscoveryDelay).
		Msg("config loaded")
	return c
}
