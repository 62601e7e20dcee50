package ingress

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func validPayload(sentAt time.Time) map[string]string {
	return map[string]string{
		"type":       MessageType,
		"channel_id": "c1",
		"token":      "tok",
		"uid":        "42",
		"name":       "Ada",
		"photo":      "https://example.com/a.png",
		"sent_at":    strconv.FormatInt(sentAt.Unix(), 10),
	}
}

func TestValidatePassesFreshPayload(t *testing.T) {
	v := NewValidator(15 * time.Second)
	now := time.Now()

	req, err := v.Validate(validPayload(now.Add(-2*time.Second)), now)
	if err != nil {
		t.Fatalf("fresh payload rejected: %v", err)
	}
	if req.ChannelID != "c1" || req.AccessToken != "tok" || req.LocalUID != "42" {
		t.Fatalf("request fields mismatch: %#v", req)
	}
	if req.RemoteName != "Ada" || req.RemotePhoto == "" {
		t.Fatalf("remote fields not carried: %#v", req)
	}
}

func TestValidateDropsStalePayload(t *testing.T) {
	v := NewValidator(15 * time.Second)
	now := time.Now()

	// 20s old, past the 15s window.
	req, err := v.Validate(validPayload(now.Add(-20*time.Second)), now)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if req != nil {
		t.Fatalf("stale payload must not yield a request")
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	v := NewValidator(15 * time.Second)
	now := time.Now()

	cases := map[string]func(map[string]string){
		"wrong type":      func(p map[string]string) { p["type"] = "chat_message" },
		"missing channel": func(p map[string]string) { delete(p, "channel_id") },
		"empty token":     func(p map[string]string) { p["token"] = "" },
		"missing uid":     func(p map[string]string) { delete(p, "uid") },
		"bad timestamp":   func(p map[string]string) { p["sent_at"] = "yesterday" },
	}

	for name, mutate := range cases {
		p := validPayload(now)
		mutate(p)
		req, err := v.Validate(p, now)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
		if req != nil {
			t.Fatalf("%s: rejected payload must not yield a request", name)
		}
	}
}

func TestValidateIgnoresExtraFields(t *testing.T) {
	v := NewValidator(15 * time.Second)
	now := time.Now()

	p := validPayload(now)
	p["collapse_key"] = "x"
	p["priority"] = "high"
	if _, err := v.Validate(p, now); err != nil {
		t.Fatalf("unknown fields must be ignored: %v", err)
	}
}
