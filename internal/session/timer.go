package session

import (
	"sync"
	"time"
)

// ExpiryTimer runs a callback after a delay unless re-armed first.
// Re-arming cancels any pending run (last-write-wins, no stacking).
type ExpiryTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func NewExpiryTimer() *ExpiryTimer {
	return &ExpiryTimer{}
}

// Reset arms the timer to fire fn after d, cancelling any pending run.
func (et *ExpiryTimer) Reset(d time.Duration, fn func()) {
	et.mu.Lock()
	defer et.mu.Unlock()
	if et.timer != nil {
		et.timer.Stop()
	}
	et.timer = time.AfterFunc(d, fn)
}

// Stop cancels any pending run.
func (et *ExpiryTimer) Stop() {
	et.mu.Lock()
	defer et.mu.Unlock()
	if et.timer != nil {
		et.timer.Stop()
		et.timer = nil
	}
}
