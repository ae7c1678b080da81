package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Source is a message source (one imported chat database).
type Source struct {
	ID          int64
	SourceType  string
	Identifier  string
	DisplayName sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GetOrCreateSource returns the id of the source matching (sourceType,
// identifier), creating it if needed. Repeated imports of the same source
// path always resolve to the same row.
func (s *Store) GetOrCreateSource(sourceType, identifier, displayName string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM sources WHERE source_type = ? AND identifier = ?
	`, sourceType, identifier).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("query source: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO sources (source_type, identifier, display_name)
		VALUES (?, ?, ?)
	`, sourceType, identifier, nullIfEmpty(displayName))
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("source insert id: %w", err)
	}
	return id, nil
}

// GetSource returns the source with the given id.
func (s *Store) GetSource(id int64) (*Source, error) {
	src := &Source{}
	err := s.db.QueryRow(`
		SELECT id, source_type, identifier, display_name, created_at, updated_at
		FROM sources WHERE id = ?
	`, id).Scan(&src.ID, &src.SourceType, &src.Identifier, &src.DisplayName,
		&src.CreatedAt, &src.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return src, nil
}

// ListSources returns all sources ordered by id.
func (s *Store) ListSources() ([]*Source, error) {
	rows, err := s.db.Query(`
		SELECT id, source_type, identifier, display_name, created_at, updated_at
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []*Source
	for rows.Next() {
		src := &Source{}
		if err := rows.Scan(&src.ID, &src.SourceType, &src.Identifier,
			&src.DisplayName, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
