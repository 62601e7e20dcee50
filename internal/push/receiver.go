package push

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	ws "nhooyr.io/websocket"
)

// Handler receives each data-only push payload with the time it arrived.
type Handler func(payload map[string]string, receivedAt time.Time)

// Receiver subscribes to the push relay feed over a websocket and hands
// every data message to the handler. It reconnects with capped backoff
// until its context is cancelled. Payload interpretation is entirely the
// handler's problem.
type Receiver struct {
	url     string
	handler Handler

	connected atomic.Bool
}

func NewReceiver(url string, handler Handler) *Receiver {
	return &Receiver{url: url, handler: handler}
}

// Connected reports whether the feed is currently up, for health checks.
func (r *Receiver) Connected() bool {
	return r.connected.Load()
}

// Run blocks until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		connected, err := r.readOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = time.Second
		}
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("relay feed lost")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readOnce dials and reads until the connection drops. It reports whether
// the dial succeeded, so the caller can reset its backoff.
func (r *Receiver) readOnce(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, _, err := ws.Dial(dialCtx, r.url, nil)
	cancel()
	if err != nil {
		return false, err
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	r.connected.Store(true)
	defer r.connected.Store(false)
	log.Info().Str("url", r.url).Msg("relay feed connected")

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return true, err
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		receivedAt := time.Now()
		var payload map[string]string
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("relay sent non-map payload, dropping")
			continue
		}
		r.handler(payload, receivedAt)
	}
}
