package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"starfall-server/galaxy"
	"starfall-server/match"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// MatchRow is one finished match
type MatchRow struct {
	ID             int64     `json:"-"`
	MatchID        string    `json:"match_id"`
	Tier           string    `json:"tier"`
	Seed           int64     `json:"seed"`
	Fingerprint    string    `json:"fingerprint"`
	Winner         string    `json:"winner"`
	StarsA         int       `json:"stars_a"`
	StarsB         int       `json:"stars_b"`
	StarsNeutral   int       `json:"stars_neutral"`
	Constellations int       `json:"constellations"`
	Duration       float64   `json:"duration"` // seconds
	EndedAt        time.Time `json:"ended_at"`
}

// EventRow is one line of a match's event log
type EventRow struct {
	MatchID string    `json:"match_id"`
	Version uint64    `json:"v"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT '',
		seed INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL DEFAULT '',
		winner TEXT NOT NULL DEFAULT '',
		stars_a INTEGER NOT NULL DEFAULT 0,
		stars_b INTEGER NOT NULL DEFAULT 0,
		stars_neutral INTEGER NOT NULL DEFAULT 0,
		constellations INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		ended_at INTEGER NOT NULL -- unix ms
	);

	CREATE TABLE IF NOT EXISTS match_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_events_match ON match_events(match_id, version);
	CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		log.Printf("store: migration error: %v", err)
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InsertResult writes the history row of a finished match. A second result
// for the same match id is ignored.
func (db *DB) InsertResult(r match.Result) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO matches
			(match_id, tier, seed, fingerprint, winner, stars_a, stars_b, stars_neutral, constellations, duration, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MatchID, r.Tier, r.Seed, r.Fingerprint, r.Winner.String(),
		r.Counts.A, r.Counts.B, r.Counts.Neutral, r.Constellations,
		r.Duration().Seconds(), r.EndedAt.UnixMilli(),
	)
	return err
}

// RecentMatches returns the latest finished matches, newest first
func (db *DB) RecentMatches(limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, match_id, tier, seed, fingerprint, winner, stars_a, stars_b, stars_neutral,
			constellations, duration, ended_at
		FROM matches ORDER BY ended_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchRow
	for rows.Next() {
		var m MatchRow
		var ended int64
		if err := rows.Scan(&m.ID, &m.MatchID, &m.Tier, &m.Seed, &m.Fingerprint, &m.Winner,
			&m.StarsA, &m.StarsB, &m.StarsNeutral, &m.Constellations, &m.Duration, &ended); err != nil {
			return nil, err
		}
		m.EndedAt = time.UnixMilli(ended).UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

// MatchByID returns the history row of one match, nil if there is none
func (db *DB) MatchByID(matchID string) (*MatchRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, match_id, tier, seed, fingerprint, winner, stars_a, stars_b, stars_neutral,
			constellations, duration, ended_at
		FROM matches WHERE match_id = ?`, matchID)
	m := &MatchRow{}
	var ended int64
	err := row.Scan(&m.ID, &m.MatchID, &m.Tier, &m.Seed, &m.Fingerprint, &m.Winner,
		&m.StarsA, &m.StarsB, &m.StarsNeutral, &m.Constellations, &m.Duration, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.EndedAt = time.UnixMilli(ended).UTC()
	return m, nil
}

// Events returns the event log of a match in version order
func (db *DB) Events(matchID string) ([]EventRow, error) {
	rows, err := db.conn.Query(`
		SELECT match_id, version, kind, COALESCE(detail, ''), created_at
		FROM match_events WHERE match_id = ? ORDER BY version, id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventRow
	for rows.Next() {
		var e EventRow
		var at int64
		if err := rows.Scan(&e.MatchID, &e.Version, &e.Kind, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at).UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// WinCounts returns how many recorded matches each faction has won
func (db *DB) WinCounts() (map[galaxy.Faction]int, error) {
	rows, err := db.conn.Query(`SELECT winner, COUNT(*) FROM matches GROUP BY winner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[galaxy.Faction]int)
	for rows.Next() {
		var w string
		var n int
		if err := rows.Scan(&w, &n); err != nil {
			return nil, err
		}
		for _, f := range galaxy.Factions {
			if f.String() == w {
				result[f] = n
			}
		}
	}
	return result, rows.Err()
}

func (db *DB) insertEvents(events []match.Event) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO match_events (match_id, version, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		detail := sql.NullString{String: e.Detail, Valid: e.Detail != ""}
		if _, err := stmt.Exec(e.MatchID, e.Version, e.Kind, detail, e.At.UnixMilli()); err != nil {
			log.Printf("store: insert event error: %v", err)
		}
	}
	return tx.Commit()
}
