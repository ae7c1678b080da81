package importer

import (
	"testing"
	"time"
)

func TestRunLockTransitions(t *testing.T) {
	rl := newRunLock()
	if got := rl.current(); got != StateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}

	if err := rl.acquire(false); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := rl.current(); got != StateImporting {
		t.Errorf("state = %v, want importing", got)
	}

	if err := rl.acquire(false); err != ErrAlreadyImporting {
		t.Errorf("second acquire = %v, want ErrAlreadyImporting", err)
	}

	rl.requestCancel()
	if got := rl.current(); got != StateCancelling {
		t.Errorf("state after cancel = %v, want cancelling", got)
	}
	if !rl.cancelRequested() {
		t.Error("cancelRequested should be true")
	}

	rl.release()
	if got := rl.current(); got != StateIdle {
		t.Errorf("state after release = %v, want idle", got)
	}
	if rl.cancelRequested() {
		t.Error("cancel flag should clear on release")
	}
}

func TestRunLockCancelWhenIdle(t *testing.T) {
	rl := newRunLock()
	rl.requestCancel()
	if got := rl.current(); got != StateIdle {
		t.Errorf("cancel while idle moved state to %v", got)
	}
}

func TestRunLockStuckReset(t *testing.T) {
	rl := newRunLock()
	if err := rl.acquire(false); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate a crashed run that left the lock held past the ceiling.
	rl.mu.Lock()
	rl.startedAt = time.Now().Add(-11 * time.Minute)
	rl.mu.Unlock()

	if err := rl.acquire(false); err != nil {
		t.Errorf("acquire after stuck lock = %v, want reset and success", err)
	}
}

func TestRunLockForcePreemptsOrdinary(t *testing.T) {
	rl := newRunLock()
	rl.gracePeriod = 30 * time.Millisecond
	if err := rl.acquire(false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.forceAcquire() }()

	// The running import polls the flag and releases.
	for !rl.cancelRequested() {
		time.Sleep(time.Millisecond)
	}
	rl.release()

	if err := <-done; err != nil {
		t.Fatalf("forceAcquire = %v", err)
	}
	if got := rl.current(); got != StateImporting {
		t.Errorf("state = %v, want importing", got)
	}

	// An ordinary request against a forced run is rejected outright.
	if err := rl.acquire(false); err != ErrForceInFlight {
		t.Errorf("acquire during forced run = %v, want ErrForceInFlight", err)
	}
}

func TestRunLockForceClearsUnresponsiveRun(t *testing.T) {
	rl := newRunLock()
	rl.gracePeriod = 20 * time.Millisecond
	if err := rl.acquire(false); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// The running import never polls; force must not be starved.
	if err := rl.forceAcquire(); err != nil {
		t.Fatalf("forceAcquire = %v, want lock cleared after grace period", err)
	}
}

func TestDynamicPageSize(t *testing.T) {
	tests := []struct {
		total int64
		floor int
		want  int
	}{
		{0, 500, 500},
		{3000, 500, 500},
		{50_000, 500, 5_000},
		{99_999, 500, 9_999},
		{150_000, 500, 22_500},
		{200_000, 500, 30_000},
		{300_000, 500, 60_000},
	}
	for _, tt := range tests {
		if got := dynamicPageSize(tt.total, tt.floor); got != tt.want {
			t.Errorf("dynamicPageSize(%d, %d) = %d, want %d", tt.total, tt.floor, got, tt.want)
		}
	}
}

func TestValidGUID(t *testing.T) {
	valid := []string{
		"5B2F0A79-9A3C-4C2E-9D4A-111122223333",
		"p:0/5B2F0A79-9A3C-4C2E-9D4A-111122223333",
		"guid-001",
	}
	for _, g := range valid {
		if !validGUID(g) {
			t.Errorf("validGUID(%q) = false, want true", g)
		}
	}
	invalid := []string{
		"",
		"abc",
		"has space inside",
		"tab\tinside",
		"ctrl\x00byte",
		string(make([]byte, 200)),
	}
	for _, g := range invalid {
		if validGUID(g) {
			t.Errorf("validGUID(%q) = true, want false", g)
		}
	}
}
