package chatdb

import (
	"fmt"
	"strings"
)

// CountMessages returns the total number of rows in the message table.
func (d *DB) CountMessages() (int64, error) {
	var count int64
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM message`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// FetchMessagesPage returns up to limit messages with ROWID greater than
// afterRowID, ordered by ROWID. Cursor pagination stays correct and cheap
// against a large immutable source, unlike OFFSET.
func (d *DB) FetchMessagesPage(afterRowID int64, limit int) ([]Message, error) {
	rows, err := d.db.Query(`
		SELECT
			m.ROWID,
			COALESCE(m.guid, ''),
			m.text,
			m.attributedBody,
			COALESCE(m.date, 0),
			COALESCE(m.is_from_me, 0),
			h.id,
			m.service,
			c.ROWID,
			c.guid,
			COALESCE(m.cache_has_attachments, 0)
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		-- A message can sit in several chats (e.g. a merged SMS/iMessage
		-- thread); collapse to the lowest chat id so each message yields
		-- exactly one row.
		LEFT JOIN (
			SELECT message_id, MIN(chat_id) AS chat_id
			FROM chat_message_join
			GROUP BY message_id
		) cmj ON cmj.message_id = m.ROWID
		LEFT JOIN chat c ON c.ROWID = cmj.chat_id
		WHERE m.ROWID > ?
		ORDER BY m.ROWID ASC
		LIMIT ?
	`, afterRowID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages after %d: %w", afterRowID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.RowID, &m.GUID, &m.Text, &m.AttributedBody,
			&m.Date, &m.IsFromMe, &m.HandleID, &m.Service,
			&m.ChatRowID, &m.ChatGUID, &m.HasAttachments,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// FetchChatMemberships returns chat ROWID → ordered member handles, built
// from the chat_handle_join table. Loaded once per import run.
func (d *DB) FetchChatMemberships() (map[int64][]string, error) {
	rows, err := d.db.Query(`
		SELECT chj.chat_id, h.id
		FROM chat_handle_join chj
		JOIN handle h ON h.ROWID = chj.handle_id
		ORDER BY chj.chat_id, h.ROWID
	`)
	if err != nil {
		if isTableNotFound(err) {
			return map[int64][]string{}, nil
		}
		return nil, fmt.Errorf("fetch chat memberships: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]string)
	for rows.Next() {
		var chatID int64
		var handle string
		if err := rows.Scan(&chatID, &handle); err != nil {
			return nil, fmt.Errorf("scan chat membership: %w", err)
		}
		result[chatID] = append(result[chatID], handle)
	}
	return result, rows.Err()
}

// FetchChatAccountIdentities returns chat ROWID → the local user's own
// identifier as used in that conversation. Preferring last_addressed_handle
// (the phone/email the chat was addressed from) over account_login keeps the
// user's outbound identity specific instead of collapsing it to a generic
// placeholder.
func (d *DB) FetchChatAccountIdentities() (map[int64]string, error) {
	rows, err := d.db.Query(`
		SELECT ROWID, COALESCE(last_addressed_handle, ''), COALESCE(account_login, '')
		FROM chat
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch chat identities: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]string)
	for rows.Next() {
		var chatID int64
		var addressed, login string
		if err := rows.Scan(&chatID, &addressed, &login); err != nil {
			return nil, fmt.Errorf("scan chat identity: %w", err)
		}
		identity := addressed
		if identity == "" {
			// account_login carries an "E:" (email) or "P:" (phone) prefix.
			identity = strings.TrimPrefix(strings.TrimPrefix(login, "E:"), "P:")
		}
		if identity != "" {
			result[chatID] = identity
		}
	}
	return result, rows.Err()
}

// FetchAttachments returns all attachment rows joined to their owning
// message GUIDs, ordered by attachment ROWID.
func (d *DB) FetchAttachments() ([]Attachment, error) {
	rows, err := d.db.Query(`
		SELECT
			a.ROWID,
			COALESCE(m.guid, ''),
			a.filename,
			a.mime_type,
			COALESCE(a.total_bytes, 0),
			a.transfer_name
		FROM attachment a
		JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
		JOIN message m ON m.ROWID = maj.message_id
		ORDER BY a.ROWID ASC
	`)
	if err != nil {
		if isTableNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(
			&a.RowID, &a.MessageGUID, &a.FilePath,
			&a.MimeType, &a.TotalBytes, &a.TransferName,
		); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// FetchAttachmentOwnersByName returns display filename → owning message
// GUID, used by the repair pass to re-link attachment records whose cached
// message id went stale. Later rows win on duplicate filenames; the stable
// external id check downstream makes that harmless.
func (d *DB) FetchAttachmentOwnersByName() (map[string]string, error) {
	rows, err := d.db.Query(`
		SELECT COALESCE(a.transfer_name, ''), COALESCE(m.guid, '')
		FROM attachment a
		JOIN message_attachment_join maj ON maj.attachment_id = a.ROWID
		JOIN message m ON m.ROWID = maj.message_id
		WHERE a.transfer_name IS NOT NULL AND a.transfer_name != ''
	`)
	if err != nil {
		if isTableNotFound(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("fetch attachment owners: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var name, guid string
		if err := rows.Scan(&name, &guid); err != nil {
			return nil, fmt.Errorf("scan attachment owner: %w", err)
		}
		if name != "" && guid != "" {
			result[name] = guid
		}
	}
	return result, rows.Err()
}

// isTableNotFound returns true if the error indicates a missing table.
func isTableNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
