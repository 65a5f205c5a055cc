package p2p

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// readinessTicks is how many one-second ticks a player gets once their
// opponent is waiting before the turn is submitted for them.
const readinessTicks = 20

// ReadinessTimer is the bounded countdown that forces a turn submission when
// the opponent is already waiting. At most one is active at a time; the
// coordinator cancels any existing timer before starting a new one so a
// forced submission can never fire twice.
type ReadinessTimer struct {
	mu        sync.Mutex
	remaining int
	interval  time.Duration
	stopch    chan struct{}
	active    bool
	fired     bool
}

func NewReadinessTimer(ticks int, interval time.Duration) *ReadinessTimer {
	return &ReadinessTimer{
		remaining: ticks,
		interval:  interval,
	}
}

// Start begins the countdown. onExpire runs exactly once, after the full
// count elapses with no cancellation, and then the timer stops itself.
func (t *ReadinessTimer) Start(onExpire func()) {
	t.mu.Lock()
	if t.active || t.fired {
		t.mu.Unlock()
		return
	}
	t.active = true
	stopch := make(chan struct{})
	t.stopch = stopch
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopch:
				return
			case <-ticker.C:
				t.mu.Lock()
				if !t.active {
					t.mu.Unlock()
					return
				}
				t.remaining--
				remaining := t.remaining
				if remaining > 0 {
					t.mu.Unlock()
					continue
				}
				t.fired = true
				t.active = false
				t.mu.Unlock()
				logrus.Info("readiness countdown expired, forcing turn submission")
				onExpire()
				return
			}
		}
	}()
}

// Cancel stops the countdown and clears the remaining time. Safe to call
// from any exit path, any number of times.
func (t *ReadinessTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopch != nil {
		close(t.stopch)
		t.stopch = nil
	}
	t.active = false
	t.remaining = 0
}

func (t *ReadinessTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *ReadinessTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
