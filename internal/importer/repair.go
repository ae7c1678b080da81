package importer

import (
	"context"
	"fmt"

	"github.com/chatvault/chatvault/internal/chatdb"
)

// RepairSummary holds statistics from a repair pass.
type RepairSummary struct {
	Checked  int64
	Repaired int64
	Orphaned int64
}

// Repair reconciles stale attachment message_id values against the current
// message table, using the stable external id and, when that fails, the
// source database's filename-to-GUID mapping. Metadata updates only; stored
// files are never touched. Idempotent: running against an already-consistent
// store changes nothing.
func (imp *Importer) Repair(ctx context.Context, sourcePath string) (*RepairSummary, error) {
	sourceID, err := imp.store.GetOrCreateSource(sourceType, sourcePath, "")
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	guidToID, err := imp.store.LoadMessageIDsByGUID(sourceID)
	if err != nil {
		return nil, fmt.Errorf("load message ids: %w", err)
	}

	// The filename→GUID map is only needed for records whose external id
	// no longer resolves, so a missing or unreadable source db degrades to
	// external-id-only repair.
	var owners map[string]string
	if src, err := chatdb.Open(sourcePath); err == nil {
		owners, err = src.FetchAttachmentOwnersByName()
		src.Close()
		if err != nil {
			imp.logger.Warn("attachment owner map unavailable", "error", err)
			owners = map[string]string{}
		}
	} else {
		imp.logger.Debug("source unavailable for repair", "error", err)
		owners = map[string]string{}
	}

	attachments, err := imp.store.ListAttachmentsForSource(sourceID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	summary := &RepairSummary{}
	for i, a := range attachments {
		if i%attachmentYieldEvery == 0 && ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++

		if currentID, ok := guidToID[a.ExternalMessageID]; ok {
			if currentID != a.MessageID {
				if err := imp.store.UpdateAttachmentMessageID(a.ID, currentID); err != nil {
					return summary, fmt.Errorf("repair attachment %d: %w", a.ID, err)
				}
				summary.Repaired++
			}
			continue
		}

		// External id does not resolve: re-derive the owner GUID from the
		// source filename mapping and rewrite both identifiers.
		if guid, ok := owners[a.Filename]; ok {
			if currentID, ok := guidToID[guid]; ok {
				if err := imp.store.UpdateAttachmentLink(a.ID, currentID, guid); err != nil {
					return summary, fmt.Errorf("repair attachment %d: %w", a.ID, err)
				}
				summary.Repaired++
				continue
			}
		}
		summary.Orphaned++
	}

	imp.logger.Info("repair finished",
		"checked", summary.Checked,
		"repaired", summary.Repaired,
		"orphaned", summary.Orphaned)
	return summary, nil
}
