package importer

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/chatvault/chatvault/internal/chatdb"
	"github.com/chatvault/chatvault/internal/fileutil"
	"github.com/chatvault/chatvault/internal/store"
)

// attachmentYieldEvery is the cancellation-poll cadence during attachment
// processing.
const attachmentYieldEvery = 25

// allowedMimePrefixes and allowedMimeTypes gate which attachment media is
// copied into the vault. Everything else is skipped without error.
var allowedMimePrefixes = []string{"image/", "video/", "audio/"}

var allowedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"text/vcard":      {},
	"text/x-vcard":    {},
}

func mimeAllowed(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	for _, p := range allowedMimePrefixes {
		if strings.HasPrefix(mimeType, p) {
			return true
		}
	}
	_, ok := allowedMimeTypes[strings.ToLower(mimeType)]
	return ok
}

// importAttachments copies surviving source attachments into
// content-addressed storage and records them. Source media is pruned over
// time, so missing files are expected and skipped quietly.
func (imp *Importer) importAttachments(ctx context.Context, src *chatdb.DB, sourceID int64, opts Options, summary *Summary) error {
	if opts.AttachmentsDir == "" {
		imp.logger.Debug("attachment copying disabled, no attachments dir")
		return nil
	}

	attachments, err := src.FetchAttachments()
	if err != nil {
		return fmt.Errorf("fetch source attachments: %w", err)
	}
	if len(attachments) == 0 {
		return nil
	}

	guidToID, err := imp.store.LoadMessageIDsByGUID(sourceID)
	if err != nil {
		return fmt.Errorf("load message ids: %w", err)
	}

	if err := fileutil.SecureMkdirAll(opts.AttachmentsDir, 0700); err != nil {
		return fmt.Errorf("create attachments dir: %w", err)
	}

	total := int64(len(attachments))
	reporter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	for i, a := range attachments {
		if i%attachmentYieldEvery == 0 && imp.stopped(ctx) {
			summary.Cancelled = true
			return nil
		}
		if reporter.Allow() {
			imp.progress.OnProgress(progressAt(PhaseAttachments, int64(i), total))
		}

		if !imp.importOneAttachment(a, sourceID, guidToID, opts) {
			summary.AttachmentsSkipped++
			continue
		}
		summary.AttachmentsImported++
	}
	imp.progress.OnProgress(progressAt(PhaseAttachments, total, total))
	return nil
}

// importOneAttachment processes a single source attachment. Returns true
// only when a new record was stored; any skip reason returns false.
func (imp *Importer) importOneAttachment(a chatdb.Attachment, sourceID int64, guidToID map[string]int64, opts Options) bool {
	filename := attachmentFilename(a)
	if filename == "" {
		return false
	}
	mimeType := ""
	if a.MimeType.Valid {
		mimeType = a.MimeType.String
	}
	if !mimeAllowed(mimeType) {
		return false
	}
	if a.TotalBytes > opts.MaxAttachmentBytes {
		return false
	}

	// The owning message may itself have been skipped; that is expected,
	// not an error.
	messageID, ok := guidToID[a.MessageGUID]
	if !ok {
		return false
	}

	// Already linked under the current message id: nothing to do.
	existing, err := imp.store.FindAttachmentByMessageAndName(messageID, filename)
	if err != nil {
		imp.logger.Warn("attachment lookup failed", "filename", filename, "error", err)
		return false
	}
	if existing != nil {
		return false
	}

	// A record under the stable identity whose cached message id went
	// stale: repair the metadata, never re-copy the file.
	existing, err = imp.store.FindAttachmentByExternalAndName(sourceID, a.MessageGUID, filename)
	if err != nil {
		imp.logger.Warn("attachment lookup failed", "filename", filename, "error", err)
		return false
	}
	if existing != nil {
		if existing.MessageID != messageID {
			if err := imp.store.UpdateAttachmentMessageID(existing.ID, messageID); err != nil {
				imp.logger.Warn("attachment repair failed", "filename", filename, "error", err)
			}
		}
		return false
	}

	if !a.FilePath.Valid || a.FilePath.String == "" {
		return false
	}
	sourcePath := expandHome(a.FilePath.String, opts.HomeDir)
	info, err := os.Stat(sourcePath)
	if err != nil {
		// Source media is pruned over time; a missing file is normal.
		return false
	}
	if info.Size() > opts.MaxAttachmentBytes {
		return false
	}

	storagePath, contentHash, err := imp.copyContentAddressed(sourcePath, filename, opts)
	if err != nil {
		imp.logger.Warn("attachment copy failed", "filename", filename, "error", err)
		return false
	}

	rec := &store.Attachment{
		SourceID:          sourceID,
		MessageID:         messageID,
		ExternalMessageID: a.MessageGUID,
		Filename:          filename,
		MimeType:          sql.NullString{String: mimeType, Valid: mimeType != ""},
		StoragePath:       storagePath,
		ContentHash:       contentHash,
		SizeBytes:         info.Size(),
	}
	if err := imp.store.InsertAttachment(rec); err != nil {
		imp.logger.Warn("attachment record failed", "filename", filename, "error", err)
		return false
	}
	return true
}

// copyContentAddressed streams the source file into content-addressed
// storage. The relative storage path is sha256(content) plus the source
// extension; identical content is stored once and only re-referenced.
func (imp *Importer) copyContentAddressed(sourcePath, filename string, opts Options) (string, string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, opts.MaxAttachmentBytes+1)); err != nil {
		return "", "", err
	}
	contentHash := fmt.Sprintf("%x", h.Sum(nil))

	ext := strings.ToLower(filepath.Ext(filename))
	relPath := contentHash + ext
	absPath := filepath.Join(opts.AttachmentsDir, relPath)

	// True content dedup: an existing file with this hash is reused, no
	// copy happens.
	if _, err := os.Stat(absPath); err == nil {
		return relPath, contentHash, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}

	dst, err := fileutil.SecureOpenFile(absPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return relPath, contentHash, nil
		}
		return "", "", err
	}
	if _, err := io.Copy(dst, io.LimitReader(f, opts.MaxAttachmentBytes)); err != nil {
		dst.Close()
		os.Remove(absPath)
		return "", "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(absPath)
		return "", "", err
	}
	return relPath, contentHash, nil
}

// attachmentFilename picks the display filename for an attachment record:
// the transfer name when present, else the base of the source path.
func attachmentFilename(a chatdb.Attachment) string {
	if a.TransferName.Valid && a.TransferName.String != "" {
		return a.TransferName.String
	}
	if a.FilePath.Valid && a.FilePath.String != "" {
		return filepath.Base(a.FilePath.String)
	}
	return ""
}

// expandHome resolves a ~-relative path from the source database against
// the configured home directory.
func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
