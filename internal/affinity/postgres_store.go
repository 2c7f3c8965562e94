package affinity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the membership table. It expects the catalog's
// establishments table to exist.
const Schema = `
CREATE TABLE IF NOT EXISTS user_affinities (
	user_id          TEXT NOT NULL,
	kind             TEXT NOT NULL,
	establishment_id TEXT NOT NULL REFERENCES establishments(id) ON DELETE CASCADE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, kind, establishment_id)
);
`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply affinity schema: %w", err)
	}
	return nil
}

func counterColumn(kind Kind) string {
	if kind == KindLike {
		return "review_count"
	}
	return "favorites_count"
}

func (s *PostgresStore) Members(ctx context.Context, userID string, kind Kind) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT establishment_id
		FROM user_affinities
		WHERE user_id = $1 AND kind = $2
		ORDER BY establishment_id
	`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for user %s: %w", kind, userID, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s for user %s: %w", kind, userID, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PostgresStore) Add(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, true)
}

func (s *PostgresStore) Remove(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, false)
}

func (s *PostgresStore) mutate(ctx context.Context, userID string, kind Kind, establishmentID string, add bool) (Outcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return OutcomeRefused, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT TRUE FROM establishments WHERE id = $1 FOR UPDATE`, establishmentID).Scan(&exists)
	missing := errors.Is(err, pgx.ErrNoRows)
	if missing && add {
		return OutcomeRefused, nil
	}
	if err != nil && !missing {
		return OutcomeRefused, fmt.Errorf("failed to lock establishment %s: %w", establishmentID, err)
	}

	var (
		query = `INSERT INTO user_affinities (user_id, kind, establishment_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
		delta = 1
	)
	if !add {
		query = `DELETE FROM user_affinities WHERE user_id = $1 AND kind = $2 AND establishment_id = $3`
		delta = -1
	}

	tag, err := tx.Exec(ctx, query, userID, string(kind), establishmentID)
	if err != nil {
		return OutcomeRefused, fmt.Errorf("failed to update %s for user %s: %w", kind, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return OutcomeUnchanged, nil
	}

	if !missing {
		column := counterColumn(kind)
		_, err = tx.Exec(ctx,
			`UPDATE establishments SET `+column+` = GREATEST(0, `+column+` + $1) WHERE id = $2`,
			delta, establishmentID)
		if err != nil {
			return OutcomeRefused, fmt.Errorf("failed to adjust %s on %s: %w", column, establishmentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeRefused, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return OutcomeChanged, nil
}
