// Package importer drives the import pipeline from an Apple Messages
// chat.db into the chatvault store: cursor pagination over the source,
// per-message body decoding, GUID dedup, batched transactional inserts,
// and content-addressed attachment storage.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chatvault/chatvault/internal/bodytext"
	"github.com/chatvault/chatvault/internal/chatdb"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/textutil"
)

// fallbackBodyText is stored nowhere: its leading bracket makes the
// placeholder skip rule drop the message, while the decode failure still
// shows up in the skip counters.
const fallbackBodyText = "[Unable to extract message content]"

const sourceType = "imessage"

// Importer handles importing Apple Messages from a chat.db into the
// chatvault store.
type Importer struct {
	store    *store.Store
	progress ImportProgress
	logger   *slog.Logger
	lock     *runLock
}

// NewImporter creates a new Messages importer.
func NewImporter(s *store.Store, progress ImportProgress, logger *slog.Logger) *Importer {
	if progress == nil {
		progress = NullProgress{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:    s,
		progress: progress,
		logger:   logger,
		lock:     newRunLock(),
	}
}

// State returns the orchestrator's current run state.
func (imp *Importer) State() RunState {
	return imp.lock.current()
}

// Cancel requests cooperative cancellation of the running import. The
// request is polled at page and batch boundaries, so callers must not
// assume immediate stop.
func (imp *Importer) Cancel() {
	imp.lock.requestCancel()
}

// Import performs a full import run. Cancellation is a normal termination:
// the summary comes back with Cancelled set and a nil error, and batches
// completed before the cancel point remain durable.
func (imp *Importer) Import(ctx context.Context, opts Options) (*Summary, error) {
	if err := imp.preflight(&opts); err != nil {
		return nil, err
	}

	if opts.Force {
		if err := imp.lock.forceAcquire(); err != nil {
			return nil, err
		}
	} else {
		if err := imp.lock.acquire(false); err != nil {
			return nil, err
		}
	}
	defer imp.lock.release()

	startTime := time.Now()
	summary := &Summary{}

	src, err := chatdb.Open(opts.SourcePath)
	if err != nil {
		return nil, eris.Wrap(ErrSourceAccess, err.Error())
	}
	defer src.Close()

	sourceID, err := imp.store.GetOrCreateSource(sourceType, opts.SourcePath, opts.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("get or create source: %w", err)
	}

	runID, err := imp.store.StartImportRun(sourceID)
	if err != nil {
		return nil, fmt.Errorf("start import run: %w", err)
	}
	var runErr error
	defer func() {
		switch {
		case runErr != nil:
			_ = imp.store.FailImportRun(runID, runErr)
		case summary.Cancelled:
			_ = imp.store.CompleteImportRun(runID, store.RunStatusCancelled,
				summary.MessagesSeen, summary.MessagesImported, summary.AttachmentsImported)
		default:
			_ = imp.store.CompleteImportRun(runID, store.RunStatusCompleted,
				summary.MessagesSeen, summary.MessagesImported, summary.AttachmentsImported)
		}
	}()

	imp.progress.OnStart()

	if opts.Force {
		if err := imp.deleteExisting(ctx, sourceID, opts); err != nil {
			runErr = err
			return nil, err
		}
	}

	imp.progress.OnProgress(progressAt(PhaseQuerying, 0, 0))

	// Count the source and preload the dedup set concurrently; both only
	// read, against different databases.
	var total int64
	var seen map[string]struct{}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = src.CountMessages()
		return err
	})
	g.Go(func() error {
		var err error
		seen, err = imp.store.LoadGUIDSet(sourceID)
		return err
	})
	if err := g.Wait(); err != nil {
		runErr = err
		return nil, fmt.Errorf("prepare import: %w", err)
	}

	memberships, err := src.FetchChatMemberships()
	if err != nil {
		imp.logger.Warn("chat memberships unavailable", "error", err)
		memberships = map[int64][]string{}
	}
	identities, err := src.FetchChatAccountIdentities()
	if err != nil {
		imp.logger.Warn("chat identities unavailable", "error", err)
		identities = map[int64]string{}
	}

	pageSize := dynamicPageSize(total, opts.PageSizeFloor)
	limits := bodytext.ScanLimits{MaxStringLen: opts.MaxStringLen}
	reporter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	imp.logger.Info("import starting",
		"source", opts.SourcePath, "total", total, "page_size", pageSize)

	var pending []store.Message
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		inserted, err := imp.store.InsertMessagesBatch(pending)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		summary.MessagesImported += inserted
		summary.MessagesSkipped += int64(len(pending)) - inserted
		summary.Batches++
		pending = pending[:0]
		if reporter.Allow() {
			imp.progress.OnProgress(progressAt(PhaseImporting, summary.MessagesSeen, total))
		}
		return nil
	}

	afterRowID := int64(0)
	for {
		if imp.stopped(ctx) {
			summary.Cancelled = true
			break
		}

		page, err := src.FetchMessagesPage(afterRowID, pageSize)
		if err != nil {
			runErr = err
			return nil, fmt.Errorf("fetch page after %d: %w", afterRowID, err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			msg := &page[i]
			afterRowID = msg.RowID
			summary.MessagesSeen++

			if !validGUID(msg.GUID) {
				summary.MessagesSkipped++
				continue
			}
			if _, dup := seen[msg.GUID]; dup {
				summary.MessagesSkipped++
				continue
			}

			body := imp.decodeBody(msg, limits)
			if body == "" || strings.HasPrefix(body, "[") {
				// Empty bodies and leading-bracket placeholders (system
				// notices, reactions, decode fallbacks) are not messages.
				summary.MessagesSkipped++
				continue
			}

			if !msg.ChatGUID.Valid || msg.ChatGUID.String == "" {
				summary.ThreadsUnresolved++
			}

			stored := imp.mapMessage(msg, sourceID, body, memberships, identities)
			pending = append(pending, stored)
			seen[msg.GUID] = struct{}{}

			if len(pending) >= opts.BatchSize {
				if err := flush(); err != nil {
					runErr = err
					return nil, err
				}
				if imp.stopped(ctx) {
					summary.Cancelled = true
					break
				}
			}
		}
		if summary.Cancelled {
			break
		}
	}

	if !summary.Cancelled {
		if err := flush(); err != nil {
			runErr = err
			return nil, err
		}
		imp.progress.OnProgress(progressAt(PhaseImporting, summary.MessagesSeen, total))

		if err := imp.importAttachments(ctx, src, sourceID, opts, summary); err != nil {
			runErr = err
			return nil, err
		}
	}

	summary.Duration = time.Since(startTime)
	imp.logger.Info("import finished",
		"imported", summary.MessagesImported,
		"skipped", summary.MessagesSkipped,
		"batches", summary.Batches,
		"attachments", summary.AttachmentsImported,
		"cancelled", summary.Cancelled,
		"duration", summary.Duration)
	imp.progress.OnComplete(summary)
	return summary, nil
}

// preflight runs the fast-fail checks before any state is touched.
func (imp *Importer) preflight(opts *Options) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.DeleteBatchSize <= 0 {
		opts.DeleteBatchSize = 5000
	}
	if opts.PageSizeFloor <= 0 {
		opts.PageSizeFloor = 500
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = 100 * 1024 * 1024
	}
	if opts.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			opts.HomeDir = home
		}
	}
	if opts.LockTimeout > 0 {
		imp.lock.mu.Lock()
		imp.lock.lockTimeout = opts.LockTimeout
		imp.lock.mu.Unlock()
	}

	if opts.SourcePath == "" {
		if runtime.GOOS != "darwin" {
			return ErrUnsupportedPlatform
		}
		opts.SourcePath = config.DefaultSourcePath()
	}

	f, err := os.Open(opts.SourcePath)
	if err != nil {
		return eris.Wrap(ErrSourceAccess, err.Error())
	}
	_ = f.Close()
	return nil
}

// deleteExisting removes all previously imported rows for the source in
// bounded batches, reporting deletion progress and yielding between
// batches.
func (imp *Importer) deleteExisting(ctx context.Context, sourceID int64, opts Options) error {
	total, err := imp.store.CountMessagesForSource(sourceID)
	if err != nil {
		return err
	}

	// Attachments first: records reference messages by both the current
	// and the stable id, so they go regardless of which ids survive.
	if n, err := imp.store.DeleteAttachmentsForSource(sourceID); err != nil {
		return err
	} else if n > 0 {
		imp.logger.Info("deleted attachment records", "count", n)
	}

	var deleted int64
	for {
		if imp.stopped(ctx) {
			return context.Canceled
		}
		n, err := imp.store.DeleteMessagesBatch(sourceID, opts.DeleteBatchSize)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		deleted += n
		imp.progress.OnProgress(progressAt(PhaseDeleting, deleted, total))
	}
	imp.logger.Info("deleted messages for reimport", "count", deleted)
	return nil
}

// decodeBody recovers the body text for one source message. Each decode
// runs in its own failure boundary: a panic degrades this message to the
// fixed fallback string instead of aborting the batch.
func (imp *Importer) decodeBody(msg *chatdb.Message, limits bodytext.ScanLimits) (text string) {
	defer func() {
		if r := recover(); r != nil {
			imp.logger.Warn("body decode panicked",
				"guid", msg.GUID, "row_id", msg.RowID, "panic", r)
			text = fallbackBodyText
		}
	}()

	if msg.Text.Valid && strings.TrimSpace(msg.Text.String) != "" {
		// Plain text can arrive in a legacy 8-bit encoding; EnsureUTF8
		// detects and converts before anything is replaced with U+FFFD.
		return bodytext.Clean(textutil.EnsureUTF8(msg.Text.String))
	}
	if len(msg.AttributedBody) == 0 {
		return ""
	}

	res := bodytext.DecodeBody(msg.AttributedBody, limits)
	if res.Text == "" {
		imp.logger.Debug("body decode recovered nothing",
			"guid", msg.GUID, "row_id", msg.RowID, "format", res.Format.String())
		return fallbackBodyText
	}
	return res.Text
}

// mapMessage converts a source row into a destination record.
func (imp *Importer) mapMessage(msg *chatdb.Message, sourceID int64, body string,
	memberships map[int64][]string, identities map[int64]string) store.Message {

	sender := msg.HandleID
	if msg.IsFromMe {
		sender = sql.NullString{}
		if msg.ChatRowID.Valid {
			if id, ok := identities[msg.ChatRowID.Int64]; ok {
				sender = sql.NullString{String: id, Valid: true}
			}
		}
		if !sender.Valid {
			sender = sql.NullString{String: "me", Valid: true}
		}
	} else if !sender.Valid && msg.ChatRowID.Valid {
		// Direct chats sometimes leave handle_id null; the sole other
		// member is the sender.
		if members := memberships[msg.ChatRowID.Int64]; len(members) == 1 {
			sender = sql.NullString{String: members[0], Valid: true}
		}
	}

	var members []string
	if msg.ChatRowID.Valid {
		members = memberships[msg.ChatRowID.Int64]
	}
	participants, participantsFlat := encodeParticipants(members)

	return store.Message{
		SourceID:         sourceID,
		GUID:             msg.GUID,
		ChatGUID:         msg.ChatGUID,
		Sender:           sender,
		BodyText:         bodyNull(body),
		Participants:     participants,
		ParticipantsFlat: participantsFlat,
		Service:          msg.Service,
		SourceMeta:       encodeSourceMeta(msg),
		IsFromMe:         msg.IsFromMe,
		HasAttachments:   msg.HasAttachments,
		SentAt:           chatdb.AppleTime(msg.Date),
	}
}

// encodeParticipants renders the chat's member handles both as a JSON array
// and as one flattened string for substring search.
func encodeParticipants(members []string) (sql.NullString, sql.NullString) {
	if len(members) == 0 {
		return sql.NullString{}, sql.NullString{}
	}
	encoded, err := json.Marshal(members)
	if err != nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: string(encoded), Valid: true},
		sql.NullString{String: strings.Join(members, " "), Valid: true}
}

// rowMeta is the opaque per-message source metadata kept alongside the
// normalized columns: enough to trace a stored row back to its source row.
type rowMeta struct {
	RowID   int64 `json:"row_id"`
	DateRaw int64 `json:"date_raw"`
}

func encodeSourceMeta(msg *chatdb.Message) sql.NullString {
	encoded, err := json.Marshal(rowMeta{RowID: msg.RowID, DateRaw: msg.Date})
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(encoded), Valid: true}
}

func bodyNull(body string) sql.NullString {
	if body == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: body, Valid: true}
}

// stopped reports whether the run should halt at this boundary.
func (imp *Importer) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || imp.lock.cancelRequested()
}

// dynamicPageSize scales the source page size with total volume so very
// large imports don't pay per-page overhead thousands of times.
func dynamicPageSize(total int64, floor int) int {
	var share int64
	switch {
	case total < 100_000:
		share = total / 10
	case total <= 200_000:
		share = total * 15 / 100
	default:
		share = total / 5
	}
	if share < int64(floor) {
		return floor
	}
	return int(share)
}

// validGUID rejects ids that cannot be Messages GUIDs: empty, very short,
// oversized, or containing non-printable/whitespace bytes.
func validGUID(guid string) bool {
	if len(guid) < 5 || len(guid) > 128 {
		return false
	}
	for _, r := range guid {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}
