package store

import (
	"database/sql"
	"fmt"
)

// Attachment is one archived attachment record.
type Attachment struct {
	ID       int64
	SourceID int64
	// MessageID caches the owning message's current row id. It can go
	// stale across delete-and-reimport cycles; ExternalMessageID is the
	// durable link.
	MessageID         int64
	ExternalMessageID string
	Filename          string
	MimeType          sql.NullString
	StoragePath       string
	ContentHash       string
	SizeBytes         int64
}

// InsertAttachment stores an attachment record. Duplicate records for the
// same stable identity (source, external message id, filename) are ignored.
func (s *Store) InsertAttachment(a *Attachment) error {
	existing, err := s.FindAttachmentByExternalAndName(a.SourceID, a.ExternalMessageID, a.Filename)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	_, err = s.db.Exec(`
		INSERT INTO attachments
			(source_id, message_id, external_message_id, filename,
			 mime_type, storage_path, content_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.SourceID, a.MessageID, a.ExternalMessageID, a.Filename,
		a.MimeType, a.StoragePath, a.ContentHash, a.SizeBytes)
	if err != nil {
		return fmt.Errorf("insert attachment %s: %w", a.Filename, err)
	}
	return nil
}

// FindAttachmentByMessageAndName looks up an attachment by the cached
// message row id plus filename.
func (s *Store) FindAttachmentByMessageAndName(messageID int64, filename string) (*Attachment, error) {
	return s.scanOneAttachment(`
		SELECT id, source_id, message_id, external_message_id, filename,
		       mime_type, storage_path, content_hash, size_bytes
		FROM attachments WHERE message_id = ? AND filename = ?
	`, messageID, filename)
}

// FindAttachmentByExternalAndName looks up an attachment by the durable
// (source, external message id, filename) identity.
func (s *Store) FindAttachmentByExternalAndName(sourceID int64, externalMessageID, filename string) (*Attachment, error) {
	return s.scanOneAttachment(`
		SELECT id, source_id, message_id, external_message_id, filename,
		       mime_type, storage_path, content_hash, size_bytes
		FROM attachments
		WHERE source_id = ? AND external_message_id = ? AND filename = ?
	`, sourceID, externalMessageID, filename)
}

// GetAttachmentForMessage resolves the attachment for a message, preferring
// the cached message_id and falling back to the durable external id. When
// the fallback path hits, the stale message_id is repaired in place.
func (s *Store) GetAttachmentForMessage(sourceID, messageID int64, externalMessageID, filename string) (*Attachment, error) {
	a, err := s.FindAttachmentByMessageAndName(messageID, filename)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	a, err = s.FindAttachmentByExternalAndName(sourceID, externalMessageID, filename)
	if err != nil || a == nil {
		return nil, err
	}
	if a.MessageID != messageID {
		if err := s.UpdateAttachmentMessageID(a.ID, messageID); err != nil {
			return nil, err
		}
		a.MessageID = messageID
	}
	return a, nil
}

// UpdateAttachmentMessageID rewrites the cached message row id for an
// attachment record. Metadata only: the stored file is untouched.
func (s *Store) UpdateAttachmentMessageID(attachmentID, messageID int64) error {
	_, err := s.db.Exec(`
		UPDATE attachments SET message_id = ? WHERE id = ?
	`, messageID, attachmentID)
	if err != nil {
		return fmt.Errorf("update attachment %d: %w", attachmentID, err)
	}
	return nil
}

// UpdateAttachmentLink rewrites both identifiers linking an attachment to
// its owning message. Used by the repair pass when the external id itself
// had to be re-derived from the source database.
func (s *Store) UpdateAttachmentLink(attachmentID, messageID int64, externalMessageID string) error {
	_, err := s.db.Exec(`
		UPDATE attachments SET message_id = ?, external_message_id = ? WHERE id = ?
	`, messageID, externalMessageID, attachmentID)
	if err != nil {
		return fmt.Errorf("update attachment link %d: %w", attachmentID, err)
	}
	return nil
}

// ListAttachmentsForSource returns all attachment records for a source,
// ordered by id.
func (s *Store) ListAttachmentsForSource(sourceID int64) ([]*Attachment, error) {
	rows, err := s.db.Query(`
		SELECT id, source_id, message_id, external_message_id, filename,
		       mime_type, storage_path, content_hash, size_bytes
		FROM attachments WHERE source_id = ? ORDER BY id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attachments []*Attachment
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.SourceID, &a.MessageID,
			&a.ExternalMessageID, &a.Filename, &a.MimeType,
			&a.StoragePath, &a.ContentHash, &a.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// CountAttachmentsForSource returns the number of attachment records for a
// source.
func (s *Store) CountAttachmentsForSource(sourceID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM attachments WHERE source_id = ?
	`, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attachments: %w", err)
	}
	return count, nil
}

// DeleteAttachmentsForSource removes all attachment records for a source and
// returns the number deleted. Record-level only: stored files are content
// addressed and may be shared, so file cleanup is a separate concern.
func (s *Store) DeleteAttachmentsForSource(sourceID int64) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM attachments WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete attachments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) scanOneAttachment(query string, args ...any) (*Attachment, error) {
	a := &Attachment{}
	err := s.db.QueryRow(query, args...).Scan(&a.ID, &a.SourceID,
		&a.MessageID, &a.ExternalMessageID, &a.Filename, &a.MimeType,
		&a.StoragePath, &a.ContentHash, &a.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attachment: %w", err)
	}
	return a, nil
}
