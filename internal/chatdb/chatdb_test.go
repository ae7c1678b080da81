package chatdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// newSourceDB creates a chat.db-shaped SQLite file on disk and returns an
// open chatdb handle plus the raw connection for inserting fixture rows.
func newSourceDB(t *testing.T) (*DB, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")

	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	schema := []string{
		`CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			guid TEXT,
			text TEXT,
			attributedBody BLOB,
			date INTEGER,
			is_from_me INTEGER,
			handle_id INTEGER,
			service TEXT,
			cache_has_attachments INTEGER
		)`,
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT)`,
		`CREATE TABLE chat (
			ROWID INTEGER PRIMARY KEY,
			guid TEXT,
			last_addressed_handle TEXT,
			account_login TEXT
		)`,
		`CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER)`,
		`CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER)`,
		`CREATE TABLE attachment (
			ROWID INTEGER PRIMARY KEY,
			filename TEXT,
			mime_type TEXT,
			total_bytes INTEGER,
			transfer_name TEXT
		)`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`,
	}
	for _, stmt := range schema {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("create fixture schema: %v", err)
		}
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open chatdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, raw
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func TestOpenRejectsNonMessagesDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	if _, err := raw.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected verification error for non-messages database")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.db")); err == nil {
		t.Fatal("expected error opening missing file")
	}
}

func TestCountMessages(t *testing.T) {
	db, raw := newSourceDB(t)

	count, err := db.CountMessages()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty count = %d, want 0", count)
	}

	for i := 1; i <= 3; i++ {
		mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me) VALUES (?, ?, 'hi', 0, 0)`,
			i, "guid-"+string(rune('a'+i)))
	}
	count, err = db.CountMessages()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestFetchMessagesPage(t *testing.T) {
	db, raw := newSourceDB(t)

	mustExec(t, raw, `INSERT INTO handle (ROWID, id) VALUES (1, '+15550001111')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (10, 'iMessage;-;+15550001111')`)
	mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me, handle_id, service, cache_has_attachments)
		VALUES (1, 'g1', 'first', 100, 0, 1, 'iMessage', 0)`)
	mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me, handle_id, service, cache_has_attachments)
		VALUES (2, 'g2', 'second', 200, 1, NULL, 'SMS', 1)`)
	mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me) VALUES (3, 'g3', 'third', 300, 0)`)
	mustExec(t, raw, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (10, 1)`)
	mustExec(t, raw, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (10, 2)`)

	page, err := db.FetchMessagesPage(0, 2)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page length = %d, want 2", len(page))
	}
	if page[0].GUID != "g1" || page[1].GUID != "g2" {
		t.Errorf("page GUIDs = %q, %q; want g1, g2", page[0].GUID, page[1].GUID)
	}

	m := page[0]
	if !m.Text.Valid || m.Text.String != "first" {
		t.Errorf("text = %+v, want 'first'", m.Text)
	}
	if !m.HandleID.Valid || m.HandleID.String != "+15550001111" {
		t.Errorf("handle = %+v, want +15550001111", m.HandleID)
	}
	if !m.ChatGUID.Valid || m.ChatGUID.String != "iMessage;-;+15550001111" {
		t.Errorf("chat guid = %+v", m.ChatGUID)
	}
	if m.IsFromMe {
		t.Error("first message should not be from me")
	}
	if !page[1].HasAttachments {
		t.Error("second message should have attachments")
	}
	if !page[1].IsFromMe {
		t.Error("second message should be from me")
	}

	// Cursor resumes after the last ROWID.
	page, err = db.FetchMessagesPage(2, 10)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(page) != 1 || page[0].GUID != "g3" {
		t.Fatalf("resumed page = %+v, want single g3", page)
	}
	if page[0].HandleID.Valid {
		t.Error("message without handle should scan as NULL")
	}
	if page[0].ChatRowID.Valid {
		t.Error("message outside any chat should have NULL chat row id")
	}
}

func TestFetchMessagesPageMultiChatMessage(t *testing.T) {
	db, raw := newSourceDB(t)

	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (10, 'chat-low')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (11, 'chat-high')`)
	mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me) VALUES (1, 'g1', 'merged', 0, 0)`)
	mustExec(t, raw, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (11, 1)`)
	mustExec(t, raw, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (10, 1)`)

	// A message joined to two chats must still be one page row, linked to
	// the lowest chat id; otherwise the page over-counts the source.
	page, err := db.FetchMessagesPage(0, 10)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("page length = %d, want 1", len(page))
	}
	if !page[0].ChatGUID.Valid || page[0].ChatGUID.String != "chat-low" {
		t.Errorf("chat guid = %+v, want chat-low", page[0].ChatGUID)
	}
}

func TestFetchChatMemberships(t *testing.T) {
	db, raw := newSourceDB(t)

	mustExec(t, raw, `INSERT INTO handle (ROWID, id) VALUES (1, '+15550001111')`)
	mustExec(t, raw, `INSERT INTO handle (ROWID, id) VALUES (2, 'friend@example.com')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (10, 'chat10')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (11, 'chat11')`)
	mustExec(t, raw, `INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (10, 1)`)
	mustExec(t, raw, `INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (10, 2)`)
	mustExec(t, raw, `INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (11, 2)`)

	members, err := db.FetchChatMemberships()
	if err != nil {
		t.Fatalf("fetch memberships: %v", err)
	}
	if got := members[10]; len(got) != 2 || got[0] != "+15550001111" || got[1] != "friend@example.com" {
		t.Errorf("chat 10 members = %v", got)
	}
	if got := members[11]; len(got) != 1 || got[0] != "friend@example.com" {
		t.Errorf("chat 11 members = %v", got)
	}
}

func TestFetchChatAccountIdentities(t *testing.T) {
	db, raw := newSourceDB(t)

	mustExec(t, raw, `INSERT INTO chat (ROWID, guid, last_addressed_handle, account_login)
		VALUES (1, 'c1', '+15550009999', 'E:me@example.com')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid, last_addressed_handle, account_login)
		VALUES (2, 'c2', NULL, 'E:me@example.com')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid, last_addressed_handle, account_login)
		VALUES (3, 'c3', '', 'P:+15550009999')`)
	mustExec(t, raw, `INSERT INTO chat (ROWID, guid) VALUES (4, 'c4')`)

	identities, err := db.FetchChatAccountIdentities()
	if err != nil {
		t.Fatalf("fetch identities: %v", err)
	}
	if identities[1] != "+15550009999" {
		t.Errorf("chat 1 identity = %q, want last_addressed_handle", identities[1])
	}
	if identities[2] != "me@example.com" {
		t.Errorf("chat 2 identity = %q, want stripped account_login", identities[2])
	}
	if identities[3] != "+15550009999" {
		t.Errorf("chat 3 identity = %q, want stripped phone login", identities[3])
	}
	if _, ok := identities[4]; ok {
		t.Error("chat without any identity should be absent from map")
	}
}

func TestFetchAttachments(t *testing.T) {
	db, raw := newSourceDB(t)

	mustExec(t, raw, `INSERT INTO message (ROWID, guid, text, date, is_from_me) VALUES (1, 'g1', '', 0, 0)`)
	mustExec(t, raw, `INSERT INTO attachment (ROWID, filename, mime_type, total_bytes, transfer_name)
		VALUES (1, '~/Library/Messages/Attachments/ab/photo.jpeg', 'image/jpeg', 2048, 'photo.jpeg')`)
	mustExec(t, raw, `INSERT INTO attachment (ROWID, filename, mime_type, total_bytes, transfer_name)
		VALUES (2, NULL, NULL, 0, NULL)`)
	mustExec(t, raw, `INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (1, 1)`)
	mustExec(t, raw, `INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (1, 2)`)

	attachments, err := db.FetchAttachments()
	if err != nil {
		t.Fatalf("fetch attachments: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("attachment count = %d, want 2", len(attachments))
	}
	a := attachments[0]
	if a.MessageGUID != "g1" {
		t.Errorf("owner guid = %q, want g1", a.MessageGUID)
	}
	if !a.FilePath.Valid || a.FilePath.String != "~/Library/Messages/Attachments/ab/photo.jpeg" {
		t.Errorf("file path = %+v", a.FilePath)
	}
	if a.TotalBytes != 2048 {
		t.Errorf("total bytes = %d, want 2048", a.TotalBytes)
	}
	if attachments[1].FilePath.Valid {
		t.Error("attachment without filename should scan as NULL")
	}

	owners, err := db.FetchAttachmentOwnersByName()
	if err != nil {
		t.Fatalf("fetch owners: %v", err)
	}
	if owners["photo.jpeg"] != "g1" {
		t.Errorf("owner of photo.jpeg = %q, want g1", owners["photo.jpeg"])
	}
	if len(owners) != 1 {
		t.Errorf("owner map size = %d, want 1 (nameless attachment skipped)", len(owners))
	}
}

func TestAppleTime(t *testing.T) {
	tests := []struct {
		name string
		raw  int64
		want time.Time
	}{
		{"zero", 0, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"seconds", 600000000, time.Date(2020, 1, 6, 10, 40, 0, 0, time.UTC)},
		{"nanoseconds", 600000000 * int64(time.Second), time.Date(2020, 1, 6, 10, 40, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppleTime(tt.raw)
			if !got.Equal(tt.want) {
				t.Errorf("AppleTime(%d) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
