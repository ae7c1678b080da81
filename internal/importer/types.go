package importer

import "time"

// Phase labels a stage of the import pipeline for progress reporting.
type Phase string

const (
	PhaseQuerying    Phase = "querying"
	PhaseDeleting    Phase = "deleting"
	PhaseImporting   Phase = "importing"
	PhaseAttachments Phase = "attachments"
)

// Progress is one progress report. Reports arrive at throttled, irregular
// intervals; Percent may jump by more than one between calls.
type Progress struct {
	Phase   Phase
	Current int64
	Total   int64
	Percent int
}

func progressAt(phase Phase, current, total int64) Progress {
	p := Progress{Phase: phase, Current: current, Total: total}
	if total > 0 {
		p.Percent = int(current * 100 / total)
	}
	return p
}

// Options configures an import run.
type Options struct {
	// SourcePath is the path to the Messages chat.db to import from.
	SourcePath string

	// DisplayName is an optional display name for the source.
	DisplayName string

	// Force deletes all previously imported rows for this source before
	// importing. A forced reimport preempts an ordinary import in flight.
	Force bool

	// AttachmentsDir is the root directory for content-addressed
	// attachment storage. Empty disables attachment copying.
	AttachmentsDir string

	// HomeDir resolves ~-relative attachment paths from the source
	// database. Defaults to the current user's home directory.
	HomeDir string

	// BatchSize is the number of messages per insert transaction.
	BatchSize int

	// DeleteBatchSize bounds each delete transaction during a forced
	// reimport.
	DeleteBatchSize int

	// PageSizeFloor is the minimum source pagination page size.
	PageSizeFloor int

	// MaxAttachmentBytes is the hard ceiling on a single copied file.
	MaxAttachmentBytes int64

	// MaxStringLen is the ceiling on a recovered typedstream string.
	MaxStringLen int

	// LockTimeout overrides how long a held import lock is trusted before
	// being treated as stuck. Zero keeps the default.
	LockTimeout time.Duration
}

// DefaultOptions returns Options with the standard defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:          500,
		DeleteBatchSize:    5000,
		PageSizeFloor:      500,
		MaxAttachmentBytes: 100 * 1024 * 1024,
		MaxStringLen:       10000,
	}
}

// Summary holds statistics from a completed import run.
type Summary struct {
	Duration            time.Duration
	MessagesSeen        int64
	MessagesImported    int64
	MessagesSkipped     int64
	Batches             int64
	ThreadsUnresolved   int64
	AttachmentsImported int64
	AttachmentsSkipped  int64
	Errors              int64
	Cancelled           bool
}

// ImportProgress provides callbacks for import progress reporting.
type ImportProgress interface {
	OnStart()
	OnProgress(p Progress)
	OnComplete(summary *Summary)
	OnError(err error)
}

// NullProgress is a no-op implementation of ImportProgress.
type NullProgress struct{}

func (NullProgress) OnStart()            {}
func (NullProgress) OnProgress(Progress) {}
func (NullProgress) OnComplete(*Summary) {}
func (NullProgress) OnError(error)       {}
