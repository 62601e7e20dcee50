package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("FRESHNESS_WINDOW")
	os.Unsetenv("DISCOVERY_DELAY")
	os.Unsetenv("PROBE_TIMEOUT")
	os.Unsetenv("LEASE_TTL")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Timing.FreshnessWindow != 15*time.Second {
		t.Fatalf("expected 15s freshness window, got %v", c.Timing.FreshnessWindow)
	}
	if c.Timing.DiscoveryDelay != 800*time.Millisecond {
		t.Fatalf("expected 800ms discovery delay, got %v", c.Timing.DiscoveryDelay)
	}
	if c.Timing.ProbeTimeout != 10*time.Second {
		t.Fatalf("expected 10s probe timeout, got %v", c.Timing.ProbeTimeout)
	}
	if c.Timing.LeaseTTL != 10*time.Minute {
		t.Fatalf("expected 10m lease ttl, got %v", c.Timing.LeaseTTL)
	}
	if c.Session.StrictTransitions {
		t.Fatalf("strict transitions should default off")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("DISCOVERY_DELAY", "50ms")
	os.Setenv("STRICT_TRANSITIONS", "true")
	defer os.Unsetenv("DISCOVERY_DELAY")
	defer os.Unsetenv("STRICT_TRANSITIONS")

	c := Load()

	if c.Timing.DiscoveryDelay != 50*time.Millisecond {
		t.Fatalf("env override not applied, got %v", c.Timing.DiscoveryDelay)
	}
	if !c.Session.StrictTransitions {
		t.Fatalf("env override for strict transitions not applied")
	}
}
