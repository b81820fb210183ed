package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/robofleet/core/fleet"
)

// SQLiteStore keeps a history of snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	// Keep bounds the number of stored snapshots. Zero keeps everything.
	Keep int
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS snapshots (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT,
        sim_time REAL,
        robots INTEGER,
        saved_at INTEGER,
        body TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save appends the snapshot and prunes the oldest ones beyond Keep.
func (s *SQLiteStore) Save(ctx context.Context, snap fleet.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, sim_time, robots, saved_at, body) VALUES (?, ?, ?, ?, ?)`,
		snap.SessionID, snap.Time, len(snap.Robots), time.Now().UnixMilli(), string(b)); err != nil {
		return err
	}
	if s.Keep > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)`,
			s.Keep); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns the most recent snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (fleet.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return fleet.Snapshot{}, err
	}
	return decode(body)
}

// LoadID returns the snapshot stored under id.
func (s *SQLiteStore) LoadID(ctx context.Context, id int64) (fleet.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, ErrNoSnapshot)
	}
	if err != nil {
		return fleet.Snapshot{}, err
	}
	return decode(body)
}

// History lists stored snapshots, newest first. A non-positive limit lists
// all of them.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Info, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sim_time, robots, saved_at FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Info
	for rows.Next() {
		var (
			info    Info
			savedAt int64
		)
		if err := rows.Scan(&info.ID, &info.SessionID, &info.Time, &info.Robots, &savedAt); err != nil {
			return nil, err
		}
		info.SavedAt = time.UnixMilli(savedAt).UTC()
		res = append(res, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func decode(body string) (fleet.Snapshot, error) {
	var snap fleet.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return fleet.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
