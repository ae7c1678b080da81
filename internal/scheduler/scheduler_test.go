package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/config"
)

func TestAddSourceInvalidCron(t *testing.T) {
	s := New(func(context.Context, string) error { return nil })
	if err := s.AddSource("/a/chat.db", "not a cron expr"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if s.IsScheduled("/a/chat.db") {
		t.Error("invalid expression should not schedule anything")
	}
}

func TestAddRemoveSource(t *testing.T) {
	s := New(func(context.Context, string) error { return nil })
	if err := s.AddSource("/a/chat.db", "0 3 * * *"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if !s.IsScheduled("/a/chat.db") {
		t.Error("source should be scheduled")
	}

	// Re-adding replaces the schedule instead of stacking jobs.
	if err := s.AddSource("/a/chat.db", "0 4 * * *"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	statuses := s.Status()
	if len(statuses) != 1 || statuses[0].Schedule != "0 4 * * *" {
		t.Errorf("statuses = %+v", statuses)
	}

	s.RemoveSource("/a/chat.db")
	if s.IsScheduled("/a/chat.db") {
		t.Error("source should be removed")
	}
}

func TestAddSourcesFromConfig(t *testing.T) {
	cfg := &config.Config{
		Schedule: []config.ScheduledStore{
			{SourcePath: "/a/chat.db", Schedule: "0 3 * * *", Enabled: true},
			{SourcePath: "/b/chat.db", Schedule: "bad expr", Enabled: true},
			{SourcePath: "/c/chat.db", Schedule: "0 5 * * *", Enabled: false},
		},
	}
	s := New(func(context.Context, string) error { return nil })
	scheduled, errs := s.AddSourcesFromConfig(cfg)
	if scheduled != 1 {
		t.Errorf("scheduled = %d, want 1", scheduled)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one invalid-expression error", errs)
	}
	if s.IsScheduled("/c/chat.db") {
		t.Error("disabled schedule should not be added")
	}
}

func TestTriggerImport(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	s := New(func(_ context.Context, sourcePath string) error {
		mu.Lock()
		got = append(got, sourcePath)
		mu.Unlock()
		close(done)
		return nil
	})
	s.Start()
	defer s.Stop()

	if err := s.TriggerImport("/a/chat.db"); err == nil {
		t.Error("trigger of unscheduled source should fail")
	}

	if err := s.AddSource("/a/chat.db", "0 3 * * *"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := s.TriggerImport("/a/chat.db"); err != nil {
		t.Fatalf("TriggerImport: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("import callback never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "/a/chat.db" {
		t.Errorf("callback calls = %v", got)
	}
}

func TestTriggerImportWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(func(context.Context, string) error {
		close(started)
		<-release
		return nil
	})
	s.Start()

	if err := s.AddSource("/a/chat.db", "0 3 * * *"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := s.TriggerImport("/a/chat.db"); err != nil {
		t.Fatalf("TriggerImport: %v", err)
	}
	<-started

	if err := s.TriggerImport("/a/chat.db"); err == nil {
		t.Error("second trigger while running should fail")
	}

	close(release)
	stopCtx := s.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not drain running imports")
	}
}

func TestStatusReportsLastError(t *testing.T) {
	done := make(chan struct{})
	s := New(func(context.Context, string) error {
		defer close(done)
		return errors.New("source locked")
	})
	s.Start()
	defer s.Stop()

	if err := s.AddSource("/a/chat.db", "0 3 * * *"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := s.TriggerImport("/a/chat.db"); err != nil {
		t.Fatalf("TriggerImport: %v", err)
	}
	<-done

	// The error is recorded after the callback returns; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statuses := s.Status()
		if len(statuses) == 1 && statuses[0].LastError == "source locked" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never recorded the error: %+v", s.Status())
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("0 3 * * *"); err != nil {
		t.Errorf("valid expr rejected: %v", err)
	}
	if err := ValidateCronExpr("banana"); err == nil {
		t.Error("invalid expr accepted")
	}
}
