// Package wal is the durable write-ahead log: every review outcome lands
// here before any network activity, so a crash between "rating accepted" and
// "synced to remote" never loses a review.
package wal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/gitdeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Log wraps the SQLite connection backing the write-ahead log.
type Log struct {
	conn *sql.DB
}

// Open creates the database connection and ensures the schema is up to date.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Log{conn: db}, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

// Entry is one recorded, not-yet-committed review outcome.
type Entry struct {
	Deck       string
	Term       string
	Reverse    bool
	State      *domain.SchedulingState // nil when the direction was undone to new
	RecordedAt time.Time
}

// Record upserts the latest outcome for one card direction. Only the newest
// state per direction matters for replay, so later reviews overwrite earlier
// rows.
func (l *Log) Record(deck, term string, reverse bool, st *domain.SchedulingState, at time.Time) error {
	var stateJSON sql.NullString
	if st != nil {
		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal state for %s/%s: %w", deck, term, err)
		}
		stateJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := l.conn.Exec(`
		INSERT INTO wal_entries (deck, term, reverse, state_json, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(deck, term, reverse) DO UPDATE SET
			state_json = excluded.state_json,
			recorded_at = excluded.recorded_at
	`,
		deck,
		term,
		boolToInt(reverse),
		stateJSON,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record wal entry for %s/%s: %w", deck, term, err)
	}
	return nil
}

// Decks lists deck names with pending entries.
func (l *Log) Decks() ([]string, error) {
	rows, err := l.conn.Query(`SELECT DISTINCT deck FROM wal_entries ORDER BY deck`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wal decks: %w", err)
	}
	defer rows.Close()

	var decks []string
	for rows.Next() {
		var deck string
		if err := rows.Scan(&deck); err != nil {
			return nil, fmt.Errorf("failed to scan wal deck row: %w", err)
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

// Pending returns a deck's unreplayed entries in recording order.
func (l *Log) Pending(deck string) ([]Entry, error) {
	rows, err := l.conn.Query(`
		SELECT deck, term, reverse, state_json, recorded_at
		FROM wal_entries WHERE deck = ?
		ORDER BY recorded_at
	`, deck)
	if err != nil {
		return nil, fmt.Errorf("failed to get wal entries for deck %s: %w", deck, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			reverse   int
			stateJSON sql.NullString
		)
		if err := rows.Scan(&e.Deck, &e.Term, &reverse, &stateJSON, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wal entry row for deck %s: %w", deck, err)
		}
		e.Reverse = reverse != 0
		if stateJSON.Valid {
			var st domain.SchedulingState
			if err := json.Unmarshal([]byte(stateJSON.String), &st); err != nil {
				return nil, fmt.Errorf("failed to decode wal state for %s/%s: %w", e.Deck, e.Term, err)
			}
			e.State = &st
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear drops all entries of a deck, after its flush commits.
func (l *Log) Clear(deck string) error {
	_, err := l.conn.Exec(`DELETE FROM wal_entries WHERE deck = ?`, deck)
	if err != nil {
		return fmt.Errorf("failed to clear wal for deck %s: %w", deck, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
