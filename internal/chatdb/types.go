package chatdb

import "database/sql"

// Message is one row from the source message table, joined with its chat and
// sender handle. Read-only: produced once per pagination page and discarded
// after processing.
type Message struct {
	RowID          int64          // message.ROWID
	GUID           string         // message.guid
	Text           sql.NullString // message.text (plain text, may be NULL)
	AttributedBody []byte         // message.attributedBody (binary, may be NULL)
	Date           int64          // message.date (Apple epoch)
	IsFromMe       bool           // message.is_from_me
	HandleID       sql.NullString // handle.id (phone number or account)
	Service        sql.NullString // message.service (iMessage / SMS)
	ChatRowID      sql.NullInt64  // chat.ROWID via chat_message_join
	ChatGUID       sql.NullString // chat.guid
	HasAttachments bool           // message.cache_has_attachments
}

// Attachment is one row from the source attachment table joined to its
// owning message's GUID.
type Attachment struct {
	RowID        int64          // attachment.ROWID
	MessageGUID  string         // message.guid of the owner
	FilePath     sql.NullString // attachment.filename (possibly ~-relative)
	MimeType     sql.NullString // attachment.mime_type
	TotalBytes   int64          // attachment.total_bytes
	TransferName sql.NullString // attachment.transfer_name (display filename)
}
