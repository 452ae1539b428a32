package lifecycle

import (
	"sync"
	"time"
)

// Lifecycle tracks whether the gateway is draining. New calls are
// refused while draining so live ones can finish before shutdown.
type Lifecycle struct {
	mu            sync.Mutex
	draining      bool
	drainingSince time.Time
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if draining && !l.draining {
		l.drainingSince = time.Now()
	}
	if !draining {
		l.drainingSince = time.Time{}
	}
	l.draining = draining
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining
}

// DrainingSince reports when draining began; ok is false while the
// gateway is accepting calls.
func (l *Lifecycle) DrainingSince() (since time.Time, ok bool) {
	if l == nil {
		return time.Time{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drainingSince, l.draining
}
