// Package dbtest provides shared database test helpers: a vault database
// seeded with the production schema, and a builder for synthetic Apple
// Messages chat.db files to import from.
package dbtest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// TestDB wraps a vault *sql.DB with builder helpers for seeding test data.
type TestDB struct {
	DB *sql.DB
	T  testing.TB
}

// NewTestDB creates an in-memory SQLite database with the production schema
// loaded. schemaPath is the path to schema.sql (e.g. "../store/schema.sql"
// from the caller's package).
func NewTestDB(t testing.TB, schemaPath string) *TestDB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema.sql: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return &TestDB{DB: db, T: t}
}

// SeedSource inserts a source row and returns its id.
func (tdb *TestDB) SeedSource(sourceType, identifier string) int64 {
	tdb.T.Helper()
	res, err := tdb.DB.Exec(`
		INSERT INTO sources (source_type, identifier) VALUES (?, ?)
	`, sourceType, identifier)
	if err != nil {
		tdb.T.Fatalf("seed source: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tdb.T.Fatalf("seed source id: %v", err)
	}
	return id
}

// SeedMessage inserts a message row and returns its id.
func (tdb *TestDB) SeedMessage(sourceID int64, guid, body string) int64 {
	tdb.T.Helper()
	res, err := tdb.DB.Exec(`
		INSERT INTO messages (source_id, guid, body_text, sent_at)
		VALUES (?, ?, ?, datetime('now'))
	`, sourceID, guid, body)
	if err != nil {
		tdb.T.Fatalf("seed message: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tdb.T.Fatalf("seed message id: %v", err)
	}
	return id
}

// SourceDB builds a synthetic Apple Messages chat.db on disk for import
// tests. Rows are inserted through the fluent Add* helpers.
type SourceDB struct {
	DB   *sql.DB
	Path string
	T    testing.TB

	nextMessageRowID    int64
	nextHandleRowID     int64
	nextChatRowID       int64
	nextAttachmentRowID int64
	handleIDs           map[string]int64
}

// NewSourceDB creates a chat.db-shaped SQLite file in a temp directory.
func NewSourceDB(t testing.TB) *SourceDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open source db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := []string{
		`CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			guid TEXT,
			text TEXT,
			attributedBody BLOB,
			date INTEGER,
			is_from_me INTEGER DEFAULT 0,
			handle_id INTEGER,
			service TEXT,
			cache_has_attachments INTEGER DEFAULT 0
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
			total_bytes INTEGER DEFAULT 0,
			transfer_name TEXT
		)`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create source schema: %v", err)
		}
	}

	return &SourceDB{
		DB:        db,
		Path:      path,
		T:         t,
		handleIDs: make(map[string]int64),
	}
}

// MessageOpts carries optional fields for AddMessage.
type MessageOpts struct {
	Text           string
	AttributedBody []byte
	Date           int64
	IsFromMe       bool
	Handle         string
	Service        string
	ChatRowID      int64
	HasAttachments bool
}

// AddMessage inserts a message row and returns its ROWID.
func (sdb *SourceDB) AddMessage(guid string, opts MessageOpts) int64 {
	sdb.T.Helper()

	var handleID any
	if opts.Handle != "" {
		handleID = sdb.ensureHandle(opts.Handle)
	}
	var text any
	if opts.Text != "" {
		text = opts.Text
	}
	service := opts.Service
	if service == "" {
		service = "iMessage"
	}

	sdb.nextMessageRowID++
	rowID := sdb.nextMessageRowID
	_, err := sdb.DB.Exec(`
		INSERT INTO message
			(ROWID, guid, text, attributedBody, date, is_from_me,
			 handle_id, service, cache_has_attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rowID, guid, text, opts.AttributedBody, opts.Date, opts.IsFromMe,
		handleID, service, opts.HasAttachments)
	if err != nil {
		sdb.T.Fatalf("add message: %v", err)
	}

	if opts.ChatRowID != 0 {
		_, err := sdb.DB.Exec(`
			INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)
		`, opts.ChatRowID, rowID)
		if err != nil {
			sdb.T.Fatalf("join message to chat: %v", err)
		}
	}
	return rowID
}

// AddChat inserts a chat row and returns its ROWID.
func (sdb *SourceDB) AddChat(guid, lastAddressedHandle string, members ...string) int64 {
	sdb.T.Helper()

	sdb.nextChatRowID++
	rowID := sdb.nextChatRowID
	var addressed any
	if lastAddressedHandle != "" {
		addressed = lastAddressedHandle
	}
	_, err := sdb.DB.Exec(`
		INSERT INTO chat (ROWID, guid, last_addressed_handle) VALUES (?, ?, ?)
	`, rowID, guid, addressed)
	if err != nil {
		sdb.T.Fatalf("add chat: %v", err)
	}
	for _, member := range members {
		handleID := sdb.ensureHandle(member)
		_, err := sdb.DB.Exec(`
			INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)
		`, rowID, handleID)
		if err != nil {
			sdb.T.Fatalf("join handle to chat: %v", err)
		}
	}
	return rowID
}

// LinkMessageToChat adds an extra chat membership for an existing message.
// Real databases have this shape when an SMS thread was merged into an
// iMessage thread.
func (sdb *SourceDB) LinkMessageToChat(messageRowID, chatRowID int64) {
	sdb.T.Helper()
	_, err := sdb.DB.Exec(`
		INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)
	`, chatRowID, messageRowID)
	if err != nil {
		sdb.T.Fatalf("join message to chat: %v", err)
	}
}

// AddAttachment inserts an attachment row linked to a message ROWID.
func (sdb *SourceDB) AddAttachment(messageRowID int64, filePath, mimeType, transferName string, totalBytes int64) int64 {
	sdb.T.Helper()

	sdb.nextAttachmentRowID++
	rowID := sdb.nextAttachmentRowID
	var path any
	if filePath != "" {
		path = filePath
	}
	var mime any
	if mimeType != "" {
		mime = mimeType
	}
	var name any
	if transferName != "" {
		name = transferName
	}
	_, err := sdb.DB.Exec(`
		INSERT INTO attachment (ROWID, filename, mime_type, total_bytes, transfer_name)
		VALUES (?, ?, ?, ?, ?)
	`, rowID, path, mime, totalBytes, name)
	if err != nil {
		sdb.T.Fatalf("add attachment: %v", err)
	}
	_, err = sdb.DB.Exec(`
		INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)
	`, messageRowID, rowID)
	if err != nil {
		sdb.T.Fatalf("join attachment to message: %v", err)
	}
	return rowID
}

func (sdb *SourceDB) ensureHandle(handle string) int64 {
	if id, ok := sdb.handleIDs[handle]; ok {
		return id
	}
	sdb.nextHandleRowID++
	id := sdb.nextHandleRowID
	if _, err := sdb.DB.Exec(`
		INSERT INTO handle (ROWID, id) VALUES (?, ?)
	`, id, handle); err != nil {
		sdb.T.Fatalf("add handle: %v", err)
	}
	sdb.handleIDs[handle] = id
	return id
}
