package importer

import (
	"sync"
	"time"
)

// RunState labels the orchestrator's lifecycle position.
type RunState int

const (
	StateIdle RunState = iota
	StateImporting
	StateCancelling
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateImporting:
		return "importing"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Run lock parameters. A lock older than lockTimeout is treated as stuck
// (a crashed prior run) and reset rather than honored. forceGracePeriod
// bounds how long a forced reimport waits for a cancelled run to drain
// before clearing the lock itself.
const (
	lockTimeout      = 10 * time.Minute
	forceGracePeriod = 5 * time.Second
)

// runLock guards the single-import invariant. State transitions are
// Idle → Importing → {Idle | Cancelling → Idle}; every transition goes
// through these methods so tests can drive independent instances.
type runLock struct {
	mu          sync.Mutex
	state       RunState
	forced      bool
	startedAt   time.Time
	cancelled   bool
	lockTimeout time.Duration
	gracePeriod time.Duration
}

func newRunLock() *runLock {
	return &runLock{lockTimeout: lockTimeout, gracePeriod: forceGracePeriod}
}

// acquire claims the lock for a new run. A stuck lock (held past the
// timeout) is reset first. A forced run in flight rejects everything;
// an ordinary run in flight rejects ordinary requests.
func (rl *runLock) acquire(forced bool) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.state != StateIdle && time.Since(rl.startedAt) > rl.lockTimeout {
		rl.resetLocked()
	}

	if rl.state != StateIdle {
		if rl.forced {
			return ErrForceInFlight
		}
		return ErrAlreadyImporting
	}

	rl.state = StateImporting
	rl.forced = forced
	rl.startedAt = time.Now()
	rl.cancelled = false
	return nil
}

// forceAcquire claims the lock for a forced reimport, cancelling any
// ordinary run in flight and waiting up to the grace period for it to
// drain. If the running import does not release in time, the lock is
// cleared anyway: force-reimport has priority and must not be starved.
func (rl *runLock) forceAcquire() error {
	err := rl.acquire(true)
	if err == nil {
		return nil
	}
	if err == ErrForceInFlight {
		return err
	}

	rl.requestCancel()
	deadline := time.Now().Add(rl.gracePeriod)
	for time.Now().Before(deadline) {
		if rl.acquire(true) == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	rl.mu.Lock()
	rl.resetLocked()
	rl.mu.Unlock()
	return rl.acquire(true)
}

// release returns the lock to Idle.
func (rl *runLock) release() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.resetLocked()
}

// requestCancel flags the current run for cooperative cancellation.
// Fire-and-forget: the run polls the flag at page and batch boundaries.
func (rl *runLock) requestCancel() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.state == StateImporting {
		rl.state = StateCancelling
		rl.cancelled = true
	}
}

// cancelRequested reports whether cancellation has been flagged.
func (rl *runLock) cancelRequested() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.cancelled
}

// current returns the current state.
func (rl *runLock) current() RunState {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.state
}

func (rl *runLock) resetLocked() {
	rl.state = StateIdle
	rl.forced = false
	rl.cancelled = false
	rl.startedAt = time.Time{}
}
