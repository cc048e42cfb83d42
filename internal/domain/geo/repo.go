package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDuplicateName = errors.New("geo: sibling with that name already exists")
	ErrInvalidParent = errors.New("geo: parent missing or wrong level")
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// CreateNode inserts a node one level below its parent. Countries have no
// parent. Name uniqueness is checked among active siblings only, so a
// deactivated node does not block reuse of its name.
func (r *Repo) CreateNode(ctx context.Context, level Level, parentID *int64, name string) (*Node, error) {
	if level == LevelCountry {
		if parentID != nil {
			return nil, ErrInvalidParent
		}
	} else {
		if parentID == nil {
			return nil, ErrInvalidParent
		}
		parent, err := r.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || !parent.Active || parent.Level.Child() != level {
			return nil, ErrInvalidParent
		}
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM geo_nodes
			WHERE level = $1 AND parent_id IS NOT DISTINCT FROM $2
			  AND name = $3 AND active
		)
	`, string(level), parentID, name).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateName
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO geo_nodes (level, parent_id, name)
		VALUES ($1,$2,$3)
		RETURNING id, level, parent_id, name, active, created_at
	`, string(level), parentID, name)
	n, err := scanNode(row)
	if err != nil {
		// Concurrent creators can race past the pre-check; the partial
		// unique index on active siblings is the backstop.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return n, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Node, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, level, parent_id, name, active, created_at
		FROM geo_nodes WHERE id = $1
	`, id)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// ListChildren returns active children of parentID at the given level,
// alphabetically. parentID nil lists countries.
func (r *Repo) ListChildren(ctx context.Context, parentID *int64, level Level) ([]Node, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, level, parent_id, name, active, created_at
		FROM geo_nodes
		WHERE level = $1 AND parent_id IS NOT DISTINCT FROM $2 AND active
		ORDER BY name
	`, string(level), parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		var lvl string
		if err := rows.Scan(&n.ID, &lvl, &n.ParentID, &n.Name, &n.Active, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Level = Level(lvl)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ResolveName never fails outward: absent or deactivated nodes resolve to
// the sentinel, since requests and users keep node ids across deactivation.
func (r *Repo) ResolveName(ctx context.Context, id int64) string {
	var name string
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT name, active FROM geo_nodes WHERE id = $1`, id).Scan(&name, &active)
	if err != nil || !active {
		return NameUnknown
	}
	return name
}

// Deactivate soft-deletes a node. Children are left untouched: they drop out
// of listings only when deactivated themselves.
func (r *Repo) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE geo_nodes SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("geo: node %d not found", id)
	}
	return nil
}

// Chain walks parent references up to the country and returns the ids seen,
// starting at the node itself. Used by the permission resolver.
func (r *Repo) Chain(ctx context.Context, id int64) ([]int64, error) {
	var chain []int64
	cur := &id
	for cur != nil {
		n, err := r.GetByID(ctx, *cur)
		if err != nil {
			return nil, err
		}
		if n == nil {
			break
		}
		chain = append(chain, n.ID)
		cur = n.ParentID
	}
	return chain, nil
}

func scanNode(row pgx.Row) (*Node, error) {
	var n Node
	var lvl string
	if err := row.Scan(&n.ID, &lvl, &n.ParentID, &n.Name, &n.Active, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Level = Level(lvl)
	return &n, nil
}
