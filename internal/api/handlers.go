package api

import (
	"encoding/json"
	"net/http"
	"time"

	"pushtalk/device/internal/store"
)

// RelayStatus is the piece of the push receiver health checks need.
type RelayStatus interface {
	Connected() bool
}

// Leaver is the inbound UI signal: the user wants out of the session.
type Leaver interface {
	RequestLeave()
}

type Handlers struct {
	store  *store.Store
	relay  RelayStatus
	leaver Leaver
}

func NewHandlers(st *store.Store, relay RelayStatus, leaver Leaver) *Handlers {
	return &Handlers{store: st, relay: relay, leaver: leaver}
}

// HandleLeave forwards a leave request to the session service.
func (h *Handlers) HandleLeave(w http.ResponseWriter, r *http.Request) {
	if h.leaver == nil {
		http.Error(w, "no session service", http.StatusServiceUnavailable)
		return
	}
	h.leaver.RequestLeave()
	w.WriteHeader(http.StatusAccepted)
}

type checkResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []checkResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HandleHealth reports store reachability and relay connectivity.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := []checkResult{
		h.checkStore(),
		h.checkRelay(),
	}
	status := healthStatus{OK: true, Checks: checks, CheckedAt: time.Now().UTC()}
	for _, c := range checks {
		if !c.OK {
			status.OK = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h *Handlers) checkStore() checkResult {
	c := checkResult{Name: "store"}
	if err := h.store.Ping(); err != nil {
		c.Error = err.Error()
		return c
	}
	c.OK = true
	return c
}

func (h *Handlers) checkRelay() checkResult {
	c := checkResult{Name: "relay"}
	if h.relay == nil || !h.relay.Connected() {
		c.Error = "relay feed not connected"
		return c
	}
	c.OK = true
	return c
}

// HandleDebugSession dumps the persisted session record. Development aid;
// returns 404 when no session exists.
func (h *Handlers) HandleDebugSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}
