package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Message is one archived message row.
type Message struct {
	ID             int64
	SourceID       int64
	GUID           string
	ChatGUID sql.NullString
	Sender   sql.NullString
	BodyText sql.NullString
	// Participants is a JSON array of the chat's member handles;
	// ParticipantsFlat carries the same handles as one searchable string.
	Participants     sql.NullString
	ParticipantsFlat sql.NullString
	Service          sql.NullString
	// SourceMeta is opaque source-row metadata (JSON).
	SourceMeta     sql.NullString
	IsFromMe       bool
	HasAttachments bool
	SentAt         time.Time
}

// LoadGUIDSet returns the set of message GUIDs already stored for a source.
// Loaded once up front so the importer can skip duplicates without a
// per-message query.
func (s *Store) LoadGUIDSet(sourceID int64) (map[string]struct{}, error) {
	rows, err := s.db.Query(`
		SELECT guid FROM messages WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query guids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	guids := make(map[string]struct{})
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("scan guid: %w", err)
		}
		guids[guid] = struct{}{}
	}
	return guids, rows.Err()
}

// InsertMessagesBatch inserts messages in a single transaction, ignoring
// rows whose (source_id, guid) already exists. Returns the number of rows
// actually inserted.
func (s *Store) InsertMessagesBatch(messages []Message) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	var inserted int64
	err := s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO messages
				(source_id, guid, chat_guid, sender, body_text,
				 participants, participants_flat, service, source_meta,
				 is_from_me, has_attachments, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range messages {
			res, err := stmt.Exec(
				m.SourceID, m.GUID, m.ChatGUID, m.Sender, m.BodyText,
				m.Participants, m.ParticipantsFlat, m.Service, m.SourceMeta,
				m.IsFromMe, m.HasAttachments, m.SentAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert message %s: %w", m.GUID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetMessageByGUID returns the message with the given source GUID.
func (s *Store) GetMessageByGUID(sourceID int64, guid string) (*Message, error) {
	m := &Message{}
	err := s.db.QueryRow(`
		SELECT id, source_id, guid, chat_guid, sender, body_text,
		       participants, participants_flat, service, source_meta,
		       is_from_me, has_attachments, sent_at
		FROM messages WHERE source_id = ? AND guid = ?
	`, sourceID, guid).Scan(&m.ID, &m.SourceID, &m.GUID, &m.ChatGUID,
		&m.Sender, &m.BodyText, &m.Participants, &m.ParticipantsFlat,
		&m.Service, &m.SourceMeta, &m.IsFromMe, &m.HasAttachments,
		&m.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return m, nil
}

// LoadMessageIDsByGUID returns the GUID → internal row id map for a source.
// The attachment pipeline resolves ownership through this map instead of a
// per-attachment query.
func (s *Store) LoadMessageIDsByGUID(sourceID int64) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT guid, id FROM messages WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query message ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]int64)
	for rows.Next() {
		var guid string
		var id int64
		if err := rows.Scan(&guid, &id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids[guid] = id
	}
	return ids, rows.Err()
}

// CountMessagesForSource returns the number of stored messages for a source.
func (s *Store) CountMessagesForSource(sourceID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE source_id = ?
	`, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// DeleteMessagesBatch deletes up to limit messages belonging to a source
// and returns the number deleted. Callers loop until it returns zero;
// bounded batches keep each transaction's journal small.
func (s *Store) DeleteMessagesBatch(sourceID int64, limit int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM messages WHERE id IN (
			SELECT id FROM messages WHERE source_id = ? LIMIT ?
		)
	`, sourceID, limit)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
