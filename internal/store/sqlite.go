package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/ltvmoon/gamesync/internal/protocol"
)

// SQLite mirrors room snapshots into a local database file.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("store: couldn't enable WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		log.Printf("store: couldn't set busy timeout: %v", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS room_snapshots (
		room TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create room_snapshots: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(room protocol.RoomID, state map[string]any, version uint64) {
	blob, err := json.Marshal(state)
	if err != nil {
		log.Printf("store: marshal snapshot for %s: %v", room, err)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO room_snapshots(room, state, version, updated_at)
		 VALUES(?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(room) DO UPDATE SET
		   state = excluded.state,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		string(room), string(blob), int64(version))
	if err != nil {
		log.Printf("store: save snapshot for %s: %v", room, err)
	}
}

func (s *SQLite) Load(room protocol.RoomID) (map[string]any, uint64, bool) {
	var blob string
	var version int64
	err := s.db.QueryRow(
		`SELECT state, version FROM room_snapshots WHERE room = ?`,
		string(room)).Scan(&blob, &version)
	if err == sql.ErrNoRows {
		return nil, 0, false
	}
	if err != nil {
		log.Printf("store: load snapshot for %s: %v", room, err)
		return nil, 0, false
	}
	var st map[string]any
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		log.Printf("store: decode snapshot for %s: %v", room, err)
		return nil, 0, false
	}
	return st, uint64(version), true
}

func (s *SQLite) Clear(room protocol.RoomID) {
	if _, err := s.db.Exec(`DELETE FROM room_snapshots WHERE room = ?`, string(room)); err != nil {
		log.Printf("store: clear snapshot for %s: %v", room, err)
	}
}

func (s *SQLite) Close() error { return s.db.Close() }
