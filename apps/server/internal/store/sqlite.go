package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"towerplane/session"
)

const defaultLocalDBName = "towerplane_local.db"

// sqliteBundle is the single-process, durable store mode backed by
// modernc.org/sqlite (pure-Go, no cgo): PRAGMA setup, schema-ensure, and a
// single connection.
type sqliteBundle struct {
	db *sql.DB
}

// NewSQLiteBundleFromEnv opens the sqlite store at TOWERPLANE_SQLITE_PATH, or
// defaultLocalDBName in the working directory if unset.
func NewSQLiteBundleFromEnv() (*Bundle, error) {
	path := strings.TrimSpace(os.Getenv("TOWERPLANE_SQLITE_PATH"))
	if path == "" {
		path = defaultLocalDBName
	}
	return NewSQLiteBundle(path)
}

// NewSQLiteBundle opens (creating if absent) a sqlite-backed store Bundle.
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("store: empty sqlite database path")
	}
	if dbPath != ":memory:" {
		if parent := filepath.Dir(dbPath); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	b := &sqliteBundle{db: db}
	return &Bundle{
		Players:     (*sqlitePlayerStore)(b),
		Sessions:    (*sqliteSessionStore)(b),
		RoundLogs:   (*sqliteRoundLogStore)(b),
		Leaderboard: (*sqliteLeaderboardStore)(b),
		Close:       db.Close,
	}, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS players (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL,
    last_active_at_ms INTEGER NOT NULL,
    games_played INTEGER NOT NULL DEFAULT 0,
    games_won INTEGER NOT NULL DEFAULT 0
)`,
		`
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    max_players INTEGER NOT NULL,
    max_rounds INTEGER NOT NULL,
    participants TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL,
    started_at_ms INTEGER,
    completed_at_ms INTEGER
)`,
		`
CREATE TABLE IF NOT EXISTS round_logs (
    session_id TEXT NOT NULL,
    round_number INTEGER NOT NULL,
    shared_card_index INTEGER NOT NULL,
    winner_player_id TEXT,
    winner_card_index INTEGER,
    matching_symbol_id INTEGER NOT NULL,
    logged_at_ms INTEGER NOT NULL,
    resolution_duration_ms INTEGER NOT NULL,
    PRIMARY KEY (session_id, round_number)
)`,
		`
CREATE TABLE IF NOT EXISTS leaderboard (
    player_id TEXT PRIMARY KEY,
    total_points INTEGER NOT NULL DEFAULT 0,
    games_played INTEGER NOT NULL DEFAULT 0,
    games_won INTEGER NOT NULL DEFAULT 0,
    last_updated_at_ms INTEGER NOT NULL
)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type sqlitePlayerStore sqliteBundle

func (s *sqlitePlayerStore) GetByID(ctx context.Context, id session.PlayerID) (*Player, error) {
	b := (*sqliteBundle)(s)
	row := b.db.QueryRowContext(ctx, `
SELECT id, display_name, created_at_ms, last_active_at_ms, games_played, games_won
FROM players WHERE id = ?`, string(id))
	p := &Player{}
	var createdMs, activeMs int64
	if err := row.Scan(&p.ID, &p.DisplayName, &createdMs, &activeMs, &p.GamesPlayed, &p.GamesWon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CreatedAtUtc = time.UnixMilli(createdMs).UTC()
	p.LastActiveAtUtc = time.UnixMilli(activeMs).UTC()
	return p, nil
}

func (s *sqlitePlayerStore) Add(ctx context.Context, p *Player) error {
	b := (*sqliteBundle)(s)
	_, err := b.db.ExecContext(ctx, `
INSERT INTO players (id, display_name, created_at_ms, last_active_at_ms, games_played, games_won)
VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.DisplayName, p.CreatedAtUtc.UnixMilli(), p.LastActiveAtUtc.UnixMilli(), p.GamesPlayed, p.GamesWon)
	return err
}

func (s *sqlitePlayerStore) Update(ctx context.Context, p *Player) error {
	b := (*sqliteBundle)(s)
	res, err := b.db.ExecContext(ctx, `
UPDATE players SET display_name = ?, last_active_at_ms = ?, games_played = ?, games_won = ?
WHERE id = ?`,
		p.DisplayName, p.LastActiveAtUtc.UnixMilli(), p.GamesPlayed, p.GamesWon, string(p.ID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqliteSessionStore sqliteBundle

func (s *sqliteSessionStore) GetByID(ctx context.Context, id session.ID) (*session.Session, error) {
	b := (*sqliteBundle)(s)
	row := b.db.QueryRowContext(ctx, `
SELECT mode, max_players, max_rounds, participants, created_at_ms, started_at_ms, completed_at_ms
FROM sessions WHERE id = ?`, id.String())
	return scanSession(id, row)
}

func (s *sqliteSessionStore) Add(ctx context.Context, sess *session.Session) error {
	b := (*sqliteBundle)(s)
	_, err := b.db.ExecContext(ctx, `
INSERT INTO sessions (id, mode, max_players, max_rounds, participants, created_at_ms, started_at_ms, completed_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID().String(), string(sess.Mode()), sess.MaxPlayers(), sess.MaxRounds(),
		joinParticipants(sess.Participants()), sess.CreatedAtUtc().UnixMilli(),
		optionalMillis(sess.StartedAtUtc()), optionalMillis(sess.CompletedAtUtc()))
	return err
}

func (s *sqliteSessionStore) Update(ctx context.Context, sess *session.Session) error {
	b := (*sqliteBundle)(s)
	res, err := b.db.ExecContext(ctx, `
UPDATE sessions SET participants = ?, started_at_ms = ?, completed_at_ms = ?
WHERE id = ?`,
		joinParticipants(sess.Participants()), optionalMillis(sess.StartedAtUtc()),
		optionalMillis(sess.CompletedAtUtc()), sess.ID().String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteSessionStore) GetActive(ctx context.Context) ([]*session.Session, error) {
	b := (*sqliteBundle)(s)
	rows, err := b.db.QueryContext(ctx, `
SELECT id, mode, max_players, max_rounds, participants, created_at_ms, started_at_ms, completed_at_ms
FROM sessions WHERE completed_at_ms IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var idStr string
		var mode string
		var maxPlayers, maxRounds int
		var participants string
		var createdMs int64
		var startedMs, completedMs sql.NullInt64
		if err := rows.Scan(&idStr, &mode, &maxPlayers, &maxRounds, &participants, &createdMs, &startedMs, &completedMs); err != nil {
			return nil, err
		}
		id, err := session.ParseID(idStr)
		if err != nil {
			return nil, err
		}
		sess, err := rehydrateSession(id, session.Mode(mode), maxPlayers, maxRounds, participants, createdMs, startedMs, completedMs)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(id session.ID, row *sql.Row) (*session.Session, error) {
	var mode string
	var maxPlayers, maxRounds int
	var participants string
	var createdMs int64
	var startedMs, completedMs sql.NullInt64
	if err := row.Scan(&mode, &maxPlayers, &maxRounds, &participants, &createdMs, &startedMs, &completedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rehydrateSession(id, session.Mode(mode), maxPlayers, maxRounds, participants, createdMs, startedMs, completedMs)
}

// rehydrateSession replays a persisted row through the Session aggregate's
// own mutators so every invariant check runs again on load, rather than
// poking private fields directly.
func rehydrateSession(id session.ID, mode session.Mode, maxPlayers, maxRounds int, participantsCSV string, createdMs int64, startedMs, completedMs sql.NullInt64) (*session.Session, error) {
	created := time.UnixMilli(createdMs).UTC()
	sess, err := session.Schedule(id, mode, maxPlayers, maxRounds, created)
	if err != nil {
		return nil, err
	}
	for _, p := range splitParticipants(participantsCSV) {
		if err := sess.AddParticipant(p, created); err != nil {
			return nil, err
		}
	}
	if startedMs.Valid {
		if err := sess.Start(time.UnixMilli(startedMs.Int64).UTC()); err != nil {
			return nil, err
		}
	}
	if completedMs.Valid {
		if err := sess.Complete(time.UnixMilli(completedMs.Int64).UTC()); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func joinParticipants(ps []session.PlayerID) string {
	strs := make([]string, len(ps))
	for i, p := range ps {
		strs[i] = string(p)
	}
	return strings.Join(strs, ",")
}

func splitParticipants(csv string) []session.PlayerID {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]session.PlayerID, len(parts))
	for i, p := range parts {
		out[i] = session.PlayerID(p)
	}
	return out
}

func optionalMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

type sqliteRoundLogStore sqliteBundle

func (s *sqliteRoundLogStore) Add(ctx context.Context, log session.RoundLog) error {
	b := (*sqliteBundle)(s)
	var winner any
	var winnerCard any
	if log.Winner != nil {
		winner = string(*log.Winner)
	}
	if log.WinnerCardIndex != nil {
		winnerCard = *log.WinnerCardIndex
	}
	_, err := b.db.ExecContext(ctx, `
INSERT INTO round_logs (session_id, round_number, shared_card_index, winner_player_id, winner_card_index, matching_symbol_id, logged_at_ms, resolution_duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.SessionID.String(), log.RoundNumber, log.SharedCardIndex, winner, winnerCard,
		log.MatchingSymbolID, log.LoggedAtUtc.UnixMilli(), log.ResolutionDuration.Milliseconds())
	return err
}

func (s *sqliteRoundLogStore) GetByGameID(ctx context.Context, id session.ID) ([]session.RoundLog, error) {
	b := (*sqliteBundle)(s)
	rows, err := b.db.QueryContext(ctx, `
SELECT round_number, shared_card_index, winner_player_id, winner_card_index, matching_symbol_id, logged_at_ms, resolution_duration_ms
FROM round_logs WHERE session_id = ? ORDER BY round_number`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.RoundLog
	for rows.Next() {
		var log session.RoundLog
		log.SessionID = id
		var winner sql.NullString
		var winnerCard sql.NullInt64
		var loggedMs, durationMs int64
		if err := rows.Scan(&log.RoundNumber, &log.SharedCardIndex, &winner, &winnerCard, &log.MatchingSymbolID, &loggedMs, &durationMs); err != nil {
			return nil, err
		}
		if winner.Valid {
			w := session.PlayerID(winner.String)
			log.Winner = &w
		}
		if winnerCard.Valid {
			c := int(winnerCard.Int64)
			log.WinnerCardIndex = &c
		}
		log.LoggedAtUtc = time.UnixMilli(loggedMs).UTC()
		log.ResolutionDuration = time.Duration(durationMs) * time.Millisecond
		out = append(out, log)
	}
	return out, rows.Err()
}

type sqliteLeaderboardStore sqliteBundle

func (s *sqliteLeaderboardStore) GetByPlayerID(ctx context.Context, id session.PlayerID) (*LeaderboardEntry, error) {
	b := (*sqliteBundle)(s)
	row := b.db.QueryRowContext(ctx, `
SELECT player_id, total_points, games_played, games_won, last_updated_at_ms
FROM leaderboard WHERE player_id = ?`, string(id))
	e := &LeaderboardEntry{}
	var updatedMs int64
	if err := row.Scan(&e.PlayerID, &e.TotalPoints, &e.GamesPlayed, &e.GamesWon, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.LastUpdatedAtUtc = time.UnixMilli(updatedMs).UTC()
	return e, nil
}

func (s *sqliteLeaderboardStore) Upsert(ctx context.Context, entry LeaderboardEntry) error {
	b := (*sqliteBundle)(s)
	_, err := b.db.ExecContext(ctx, `
INSERT INTO leaderboard (player_id, total_points, games_played, games_won, last_updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
    total_points = excluded.total_points,
    games_played = excluded.games_played,
    games_won = excluded.games_won,
    last_updated_at_ms = excluded.last_updated_at_ms`,
		string(entry.PlayerID), entry.TotalPoints, entry.GamesPlayed, entry.GamesWon, entry.LastUpdatedAtUtc.UnixMilli())
	return err
}

func (s *sqliteLeaderboardStore) GetTop(ctx context.Context, count int) ([]LeaderboardEntry, error) {
	b := (*sqliteBundle)(s)
	rows, err := b.db.QueryContext(ctx, `
SELECT player_id, total_points, games_played, games_won, last_updated_at_ms
FROM leaderboard ORDER BY total_points DESC LIMIT ?`, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var updatedMs int64
		if err := rows.Scan(&e.PlayerID, &e.TotalPoints, &e.GamesPlayed, &e.GamesWon, &updatedMs); err != nil {
			return nil, err
		}
		e.LastUpdatedAtUtc = time.UnixMilli(updatedMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
