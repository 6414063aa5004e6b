package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one finished match as persisted for player history.
type Record struct {
	SessionID    string
	Mode         string
	LeftID       int64
	LeftName     string
	RightID      int64
	RightName    string
	WinnerID     int64
	LeftScore    int
	RightScore   int
	Forfeit      bool
	TournamentID int64
	MatchID      int64
	FinishedAt   time.Time
}

// Stats aggregates a player's match history.
type Stats struct {
	Played int `json:"played"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	mode TEXT NOT NULL,
	left_id INTEGER NOT NULL,
	left_name TEXT NOT NULL,
	right_id INTEGER NOT NULL,
	right_name TEXT NOT NULL,
	winner_id INTEGER NOT NULL,
	left_score INTEGER NOT NULL,
	right_score INTEGER NOT NULL,
	forfeit INTEGER NOT NULL DEFAULT 0,
	tournament_id INTEGER NOT NULL DEFAULT 0,
	match_id INTEGER NOT NULL DEFAULT 0,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_games_left ON games(left_id);
CREATE INDEX IF NOT EXISTS idx_games_right ON games(right_id);
`

// Store persists finished matches in SQLite so player stats survive restarts.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the database at path. Use ":memory:"
// for throwaway stores in tests.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path must not be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	//1.- SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordMatch inserts one finished match. Replaying the same session id is a
// no-op so a retried teardown never duplicates history.
func (s *Store) RecordMatch(ctx context.Context, record Record) error {
	if s == nil || s.db == nil {
		return errors.New("store is not open")
	}
	if record.SessionID == "" {
		return errors.New("record needs a session id")
	}
	if record.FinishedAt.IsZero() {
		record.FinishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO games (
			session_id, mode, left_id, left_name, right_id, right_name,
			winner_id, left_score, right_score, forfeit, tournament_id, match_id, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, record.Mode, record.LeftID, record.LeftName,
		record.RightID, record.RightName, record.WinnerID,
		record.LeftScore, record.RightScore, boolToInt(record.Forfeit),
		record.TournamentID, record.MatchID, record.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// StatsFor aggregates wins and losses for one player across both sides.
func (s *Store) StatsFor(ctx context.Context, userID int64) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not open")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN winner_id = ? THEN 1 ELSE 0 END), 0)
		FROM games WHERE left_id = ? OR right_id = ?`,
		userID, userID, userID)
	var stats Stats
	if err := row.Scan(&stats.Played, &stats.Wins); err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	stats.Losses = stats.Played - stats.Wins
	return stats, nil
}

// Recent returns the player's newest matches, most recent first.
func (s *Store) Recent(ctx context.Context, userID int64, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not open")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, mode, left_id, left_name, right_id, right_name,
			winner_id, left_score, right_score, forfeit, tournament_id, match_id, finished_at
		FROM games WHERE left_id = ? OR right_id = ?
		ORDER BY finished_at DESC, id DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var forfeit int
		if err := rows.Scan(&record.SessionID, &record.Mode,
			&record.LeftID, &record.LeftName, &record.RightID, &record.RightName,
			&record.WinnerID, &record.LeftScore, &record.RightScore,
			&forfeit, &record.TournamentID, &record.MatchID, &record.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		record.Forfeit = forfeit != 0
		records = append(records, record)
	}
	return records, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
