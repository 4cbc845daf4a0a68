package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/cardroom/go/internal/models"
)

// ErrUnavailable wraps every database failure the archive reports.
var ErrUnavailable = errors.New("archive unavailable")

const schema = `
CREATE TABLE IF NOT EXISTS round_results (
	id           UUID PRIMARY KEY,
	room_id      TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	winner_id    TEXT,
	winner_cards TEXT[] NOT NULL DEFAULT '{}',
	submissions  INTEGER NOT NULL,
	forced       BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS round_results_room_resolved_idx
	ON round_results (room_id, resolved_at DESC);
`

// querier is the part of *pgxpool.Pool the archive uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store records resolved rounds in Postgres.
type Store struct {
	db   querier
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// EnsureSchema creates the round_results table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", ErrUnavailable, err)
	}
	return nil
}

// RecordRound inserts one resolved round.
func (s *Store) RecordRound(ctx context.Context, result models.RoundResult) error {
	var winner *string
	if result.WinnerID != "" {
		winner = &result.WinnerID
	}
	cards := result.WinnerCards
	if cards == nil {
		cards = []string{}
	}
	resolvedAt := result.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO round_results (id, room_id, prompt, winner_id, winner_cards, submissions, forced, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), result.RoomID, result.Prompt, winner, cards, result.Submissions, result.Forced, resolvedAt.UTC(),
	)
	if err != nil {
		return wrap("record round", err)
	}
	return nil
}

// RecentRounds returns up to limit rounds of room, newest first.
func (s *Store) RecentRounds(ctx context.Context, room string, limit int) ([]models.RoundResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT room_id, prompt, COALESCE(winner_id, ''), winner_cards, submissions, forced, resolved_at
		FROM round_results
		WHERE room_id = $1
		ORDER BY resolved_at DESC
		LIMIT $2`, room, limit)
	if err != nil {
		return nil, wrap("recent rounds", err)
	}
	defer rows.Close()

	var out []models.RoundResult
	for rows.Next() {
		var r models.RoundResult
		if err := rows.Scan(&r.RoomID, &r.Prompt, &r.WinnerID, &r.WinnerCards, &r.Submissions, &r.Forced, &r.ResolvedAt); err != nil {
			return nil, wrap("scan round", err)
		}
		if len(r.WinnerCards) == 0 {
			r.WinnerCards = nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("recent rounds", err)
	}
	return out, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
