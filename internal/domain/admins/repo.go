package admins

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetByUser(ctx context.Context, userID int64) (*Grant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, level, jurisdiction_id, active, created_at
		FROM admin_grants WHERE user_id = $1 AND active
	`, userID)
	var g Grant
	var lvl string
	if err := row.Scan(&g.UserID, &lvl, &g.JurisdictionID, &g.Active, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	g.Level = Level(lvl)
	return &g, nil
}

// Upsert replaces the user's grant. One active grant per user is a table
// invariant, so a new designation overwrites the previous one.
func (r *Repo) Upsert(ctx context.Context, userID int64, level Level, jurisdictionID *int64) (*Grant, error) {
	if level == LevelSupreme && jurisdictionID != nil {
		return nil, fmt.Errorf("admins: supreme grant carries no jurisdiction")
	}
	if level != LevelSupreme && jurisdictionID == nil {
		return nil, fmt.Errorf("admins: %s grant requires a jurisdiction", level)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO admin_grants (user_id, level, jurisdiction_id, active)
		VALUES ($1,$2,$3,TRUE)
		ON CONFLICT (user_id) DO UPDATE SET
		  level = EXCLUDED.level,
		  jurisdiction_id = EXCLUDED.jurisdiction_id,
		  active = TRUE
		RETURNING user_id, level, jurisdiction_id, active, created_at
	`, userID, string(level), jurisdictionID)
	var g Grant
	var lvl string
	if err := row.Scan(&g.UserID, &lvl, &g.JurisdictionID, &g.Active, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.Level = Level(lvl)
	return &g, nil
}

func (r *Repo) Revoke(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE admin_grants SET active = FALSE WHERE user_id = $1`, userID)
	return err
}

// EnsureSupreme guarantees at startup that the distinguished owner holds the
// supreme grant. Repairs the grant if it was lowered or revoked.
func (r *Repo) EnsureSupreme(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_grants (user_id, level, jurisdiction_id, active)
		VALUES ($1,'supreme',NULL,TRUE)
		ON CONFLICT (user_id) DO UPDATE SET
		  level = 'supreme', jurisdiction_id = NULL, active = TRUE
	`, userID)
	return err
}
