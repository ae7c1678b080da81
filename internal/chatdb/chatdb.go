// Package chatdb provides read-only access to an Apple Messages chat.db.
// The schema is owned by Apple and treated as immutable input; every query
// tolerates the column drift seen across macOS versions via COALESCE and
// LEFT JOINs.
package chatdb

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a read-only connection to a chat.db file.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens chat.db read-only and verifies it looks like an Apple Messages
// database. The file: URI form safely handles paths containing '?' or other
// special characters.
func Open(path string) (*DB, error) {
	dsn := (&url.URL{
		Scheme:   "file",
		OmitHost: true,
		Path:     path,
		RawQuery: "mode=ro&_busy_timeout=5000",
	}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chat.db: %w", err)
	}
	if err := verifyMessagesDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, path: path}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the file path this DB was opened from.
func (d *DB) Path() string {
	return d.path
}

// verifyMessagesDB checks that the database has the Apple Messages tables
// this package queries.
func verifyMessagesDB(db *sql.DB) error {
	for _, table := range []string{"message", "chat", "handle", "chat_message_join"} {
		var count int
		err := db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type = 'table' AND name = ?
		`, table).Scan(&count)
		if err != nil {
			return fmt.Errorf("check chat.db: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("not a valid Messages database: %q table not found", table)
		}
	}
	return nil
}

var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// nanosecondThreshold distinguishes the two timestamp encodings chat.db has
// used: nanoseconds since the Apple epoch (macOS 10.13+) and plain seconds
// (older exports). Any value above it cannot plausibly be seconds.
const nanosecondThreshold = int64(1e15)

// AppleTime converts a raw chat.db timestamp (Apple epoch 2001-01-01 UTC,
// in nanoseconds or seconds depending on vintage) to a time.Time.
func AppleTime(raw int64) time.Time {
	if raw > nanosecondThreshold {
		return appleEpoch.Add(time.Duration(raw))
	}
	return appleEpoch.Add(time.Duration(raw) * time.Second)
}
