package lease

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Lease models the bounded, renewable execution grant that keeps the OS
// from preempting the background session worker. It is purely local
// bookkeeping: when the TTL elapses without a renewal, OnExpire fires and
// the holder must wind itself down.
type Lease struct {
	ttl      time.Duration
	onExpire func()

	mu       sync.Mutex
	timer    *time.Timer
	released bool
}

// Acquire starts a lease of ttl. onExpire runs on a timer goroutine if the
// lease lapses; it is never called after Release.
func Acquire(ttl time.Duration, onExpire func()) *Lease {
	l := &Lease{ttl: ttl, onExpire: onExpire}
	l.timer = time.AfterFunc(ttl, l.expire)
	log.Debug().Dur("ttl", ttl).Msg("execution lease acquired")
	return l
}

func (l *Lease) expire() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()
	log.Warn().Msg("execution lease expired")
	if l.onExpire != nil {
		l.onExpire()
	}
}

// Renew pushes the expiry out by a full TTL. Renewing a released or
// expired lease returns false.
func (l *Lease) Renew() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return false
	}
	if !l.timer.Stop() {
		// Timer already fired; expire is running or has run.
		return false
	}
	l.timer.Reset(l.ttl)
	return true
}

// Release ends the lease without firing OnExpire. Idempotent.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.timer.Stop()
	log.Debug().Msg("execution lease released")
}

// Held reports whether the lease is still live.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.released
}
