// Package sessions tracks live call sessions by call SID so dispatcher
// decisions and graceful shutdown can reach them.
package sessions

import (
	"context"
	"sync"
)

// Handle is the slice of a call session the tracker exposes: teardown
// plus the two dispatcher decisions on a held booking.
type Handle struct {
	Cancel         func()
	ConfirmBooking func() error
	RejectBooking  func() error
}

type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		calls: make(map[string]*trackedCall),
	}
}

// Register adds a call. A second registration under the same SID
// replaces the first; the returned func unregisters exactly once.
func (t *Tracker) Register(callSID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	old := t.calls[callSID]
	t.calls[callSID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(callSID, old)
	}

	return func() { t.unregister(callSID, entry) }
}

func (t *Tracker) unregister(callSID string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls != nil && t.calls[callSID] == entry {
			delete(t.calls, callSID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Lookup finds a live call by SID.
func (t *Tracker) Lookup(callSID string) (Handle, bool) {
	if t == nil {
		return Handle{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.calls[callSID]
	if !ok || entry == nil {
		return Handle{}, false
	}
	return entry.handle, true
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or the
// context expires.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
