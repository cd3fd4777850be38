package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kaivest/internal/stream"
)

// Journal captures the raw wire records of a session so a misbehaving
// stream can be replayed through the pipeline after the fact.
type Journal struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS stream_records (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT    NOT NULL,
    seq        INTEGER NOT NULL,
    event      TEXT,
    data       TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stream_records_session ON stream_records(session_id, seq);
`

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, path: path}, nil
}

// Append writes one record. Callers treat failures as best-effort.
func (j *Journal) Append(sessionID string, seq int, rec stream.Record) error {
	_, err := j.db.Exec(
		`INSERT INTO stream_records(session_id, seq, event, data, created_at) VALUES(?, ?, ?, ?, ?)`,
		sessionID, seq, rec.Event, rec.Data, time.Now().UnixMilli(),
	)
	return err
}

// Replay returns a session's records in arrival order, ready to be fed
// back through Decode and the reducer.
func (j *Journal) Replay(sessionID string) ([]stream.Record, error) {
	rows, err := j.db.Query(
		`SELECT event, data FROM stream_records WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stream.Record
	for rows.Next() {
		var rec stream.Record
		if err := rows.Scan(&rec.Event, &rec.Data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
