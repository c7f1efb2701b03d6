package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
	id          TEXT PRIMARY KEY,
	winner_slot INTEGER NOT NULL,
	winner_name TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	players     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS match_results_ended_at ON match_results (ended_at DESC);
`

// PostgresStore persists match results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with a DSN such as DATABASE_URL and pings it.
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// Migrate creates the match_results table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate match_results: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r MatchResult) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_results (id, winner_slot, winner_name, reason, started_at, ended_at, duration_ms, players)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET winner_slot = EXCLUDED.winner_slot,
		    winner_name = EXCLUDED.winner_name,
		    reason = EXCLUDED.reason,
		    ended_at = EXCLUDED.ended_at,
		    duration_ms = EXCLUDED.duration_ms,
		    players = EXCLUDED.players
	`, r.ID, r.WinnerSlot, r.WinnerName, r.Reason, r.StartedAt, r.EndedAt, r.Duration.Milliseconds(), players)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]MatchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, winner_slot, winner_name, reason, started_at, ended_at, duration_ms, players
		FROM match_results
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []MatchResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (MatchResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, winner_slot, winner_name, reason, started_at, ended_at, duration_ms, players
		FROM match_results
		WHERE id = $1
	`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchResult{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (MatchResult, error) {
	var (
		r          MatchResult
		durationMS int64
		players    []byte
	)
	if err := sc.Scan(&r.ID, &r.WinnerSlot, &r.WinnerName, &r.Reason, &r.StartedAt, &r.EndedAt, &durationMS, &players); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MatchResult{}, err
		}
		return MatchResult{}, fmt.Errorf("scan result: %w", err)
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(players, &r.Players); err != nil {
		return MatchResult{}, fmt.Errorf("decode players of %s: %w", r.ID, err)
	}
	return r, nil
}
