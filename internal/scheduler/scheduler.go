// Package scheduler provides cron-based scheduling for automated imports.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatvault/chatvault/internal/config"
)

// ImportFunc is the callback invoked when a scheduled import should run.
// It receives the source chat.db path.
type ImportFunc func(ctx context.Context, sourcePath string) error

// SourceStatus represents the import status of a scheduled source.
type SourceStatus struct {
	SourcePath string    `json:"source_path"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run,omitempty"`
	NextRun    time.Time `json:"next_run"`
	Schedule   string    `json:"schedule"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based import scheduling.
type Scheduler struct {
	cron       *cron.Cron
	importFunc ImportFunc
	logger     *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // source path -> cron entry ID
	schedules map[string]string       // source path -> cron expression
	running   map[string]bool         // source path -> currently importing
	lastRun   map[string]time.Time    // source path -> last successful run
	lastErr   map[string]error        // source path -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running import goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates a new Scheduler with the given import callback.
func New(importFunc ImportFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		importFunc: importFunc,
		logger:     slog.Default(),
		jobs:       make(map[string]cron.EntryID),
		schedules:  make(map[string]string),
		running:    make(map[string]bool),
		lastRun:    make(map[string]time.Time),
		lastErr:    make(map[string]error),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddSource schedules imports of a source using the given cron expression.
// Returns an error if the cron expression is invalid.
func (s *Scheduler) AddSource(sourcePath, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[sourcePath]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, sourcePath)
		delete(s.schedules, sourcePath)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[sourcePath] {
			s.mu.Unlock()
			return
		}
		s.running[sourcePath] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runImport(sourcePath)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[sourcePath] = entryID
	s.schedules[sourcePath] = cronExpr
	s.logger.Info("scheduled import",
		"source", sourcePath,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddSourcesFromConfig adds all enabled schedules from the config.
// Returns the number of sources scheduled and any errors encountered.
func (s *Scheduler) AddSourcesFromConfig(cfg *config.Config) (int, []error) {
	var errors []error
	scheduled := 0

	for _, src := range cfg.ScheduledStores() {
		if err := s.AddSource(src.SourcePath, src.Schedule); err != nil {
			errors = append(errors, fmt.Errorf("%s: %w", src.SourcePath, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errors
}

// RemoveSource removes the schedule for a source.
func (s *Scheduler) RemoveSource(sourcePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[sourcePath]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, sourcePath)
		delete(s.schedules, sourcePath)
		s.logger.Info("removed schedule", "source", sourcePath)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running imports, and waits
// for them to finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runImport executes an import for a source (called by cron or TriggerImport).
// The caller must have already called wg.Add(1) and set running[sourcePath].
func (s *Scheduler) runImport(sourcePath string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[sourcePath] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled import", "source", sourcePath)
	start := time.Now()

	err := s.importFunc(s.ctx, sourcePath)

	s.mu.Lock()
	if err != nil {
		s.lastErr[sourcePath] = err
		s.logger.Error("scheduled import failed",
			"source", sourcePath,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[sourcePath] = time.Now()
		s.lastErr[sourcePath] = nil
		s.logger.Info("scheduled import completed",
			"source", sourcePath,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if the source has been added to the scheduler.
func (s *Scheduler) IsScheduled(sourcePath string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[sourcePath]
	return exists
}

// TriggerImport manually triggers an import for a source outside its
// schedule. Returns an error if an import is already running, the source is
// not scheduled, or the scheduler has been stopped.
func (s *Scheduler) TriggerImport(sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[sourcePath]; !exists {
		return fmt.Errorf("source %s is not scheduled", sourcePath)
	}
	if s.running[sourcePath] {
		return fmt.Errorf("import already running for %s", sourcePath)
	}

	s.running[sourcePath] = true
	s.wg.Add(1)
	go s.runImport(sourcePath)
	return nil
}

// Status returns the current status of all scheduled sources.
func (s *Scheduler) Status() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []SourceStatus
	for sourcePath, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := SourceStatus{
			SourcePath: sourcePath,
			Running:    s.running[sourcePath],
			LastRun:    s.lastRun[sourcePath],
			NextRun:    entry.Next,
			Schedule:   s.schedules[sourcePath],
		}
		if err := s.lastErr[sourcePath]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
