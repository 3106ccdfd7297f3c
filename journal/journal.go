// Package journal persists every envelope a broker publishes to SQLite, so
// tests can assert on traffic after the fact and a fixture batch leaves an
// inspectable record behind.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/epalmerini/burrow/internal/xdg"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store defines the interface for envelope persistence.
type Store interface {
	CreateSession(ctx context.Context, name string) (int64, error)
	EndSession(ctx context.Context, sessionID int64) error
	InsertMessage(ctx context.Context, rec *Record) (int64, error)
	ListBySession(ctx context.Context, sessionID, limit, offset int64) ([]Message, error)
	ListByDestination(ctx context.Context, sessionID int64, destination string) ([]Message, error)
	CountBySession(ctx context.Context, sessionID int64) (int64, error)
	Close() error
}

// Record is an envelope to be inserted.
type Record struct {
	SessionID     int64
	Destination   string
	Body          []byte
	ContentType   string
	Headers       map[string]string
	CorrelationID string
	ReplyTo       string
	MessageID     string
	Timestamp     time.Time
}

// Message is a stored envelope read back from the journal.
type Message struct {
	ID            int64
	SessionID     int64
	Destination   string
	Body          []byte
	ContentType   sql.NullString
	Headers       sql.NullString
	CorrelationID sql.NullString
	ReplyTo       sql.NullString
	MessageID     sql.NullString
	Timestamp     sql.NullTime
	RecordedAt    time.Time
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore opens (or creates) the journal database at path. An empty path
// uses the default data directory.
func NewStore(path string) (*SQLiteStore, error) {
	if path == "" {
		dataDir, err := DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dataDir, "burrow.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys for session cascade, WAL so concurrent test readers
	// don't block the writer.
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to set pragmas: %w", err), db.Close())
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize schema: %w", err), db.Close())
	}

	return &SQLiteStore{db: db}, nil
}

// DefaultDataDir returns the journal data directory following the XDG spec.
func DefaultDataDir() (string, error) {
	return xdg.Dir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func (s *SQLiteStore) CreateSession(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO sessions (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, rec *Record) (int64, error) {
	var headersJSON sql.NullString
	if len(rec.Headers) > 0 {
		if data, err := json.Marshal(rec.Headers); err == nil {
			headersJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages (session_id, destination, body, content_type, headers,
                      correlation_id, reply_to, message_id, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Destination,
		rec.Body,
		toNullString(rec.ContentType),
		headersJSON,
		toNullString(rec.CorrelationID),
		toNullString(rec.ReplyTo),
		toNullString(rec.MessageID),
		toNullTime(rec.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return res.LastInsertId()
}

const messageColumns = `id, session_id, destination, body, content_type, headers,
       correlation_id, reply_to, message_id, timestamp, recorded_at`

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID, limit, offset int64) ([]Message, error) {
	query := `SELECT ` + messageColumns + `
FROM messages WHERE session_id = ?
ORDER BY id ASC LIMIT ? OFFSET ?`
	return s.scanMessages(ctx, query, sessionID, limit, offset)
}

func (s *SQLiteStore) ListByDestination(ctx context.Context, sessionID int64, destination string) ([]Message, error) {
	query := `SELECT ` + messageColumns + `
FROM messages WHERE session_id = ? AND destination = ?
ORDER BY id ASC`
	return s.scanMessages(ctx, query, sessionID, destination)
}

func (s *SQLiteStore) CountBySession(ctx context.Context, sessionID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) scanMessages(ctx context.Context, query string, args ...any) (_ []Message, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Destination, &m.Body, &m.ContentType, &m.Headers,
			&m.CorrelationID, &m.ReplyTo, &m.MessageID, &m.Timestamp, &m.RecordedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
