package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidZone means a work-zone id does not refer to an active zone-level
// node.
var ErrInvalidZone = errors.New("users: work zones must be active zones")

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const userCols = `id, telegram_id, username, full_name, phone, language, role, status, home_node_id, created_at, updated_at`

func (r *Repo) GetByTelegramID(ctx context.Context, tgID int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE telegram_id = $1`, tgID)
	return scanUser(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Create registers a user on first contact. The telegram id is immutable
// afterwards; re-running on an existing user only refreshes the username, and
// an empty username never clobbers a stored one.
func (r *Repo) Create(ctx context.Context, tgID int64, username string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, role, status)
		VALUES ($1,$2,'requester','registering')
		ON CONFLICT (telegram_id) DO UPDATE SET
		  username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
		  updated_at = now()
		RETURNING `+userCols, tgID, username)
	return scanUser(row)
}

/* Registration steps: language → phone → name → role → location. */

func (r *Repo) SetLanguage(ctx context.Context, tgID int64, lang string) error {
	return r.set(ctx, tgID, `language = $2`, lang)
}

func (r *Repo) SetPhone(ctx context.Context, tgID int64, phone string) error {
	return r.set(ctx, tgID, `phone = $2`, phone)
}

func (r *Repo) SetFullName(ctx context.Context, tgID int64, name string) error {
	return r.set(ctx, tgID, `full_name = $2`, name)
}

func (r *Repo) SetRole(ctx context.Context, tgID int64, role Role) error {
	return r.set(ctx, tgID, `role = $2`, string(role))
}

func (r *Repo) SetHome(ctx context.Context, tgID int64, nodeID *int64) error {
	return r.set(ctx, tgID, `home_node_id = $2`, nodeID)
}

func (r *Repo) Activate(ctx context.Context, tgID int64) error {
	return r.set(ctx, tgID, `status = $2`, string(StatusActive))
}

func (r *Repo) Ban(ctx context.Context, tgID int64) error {
	return r.set(ctx, tgID, `status = $2`, string(StatusBanned))
}

func (r *Repo) set(ctx context.Context, tgID int64, assign string, val any) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET `+assign+`, updated_at = now() WHERE telegram_id = $1`, tgID, val)
	return err
}

/* Work zones: the transporter's dispatch filter. */

// SetWorkZones replaces the user's zone set wholesale; the bot edits the
// whole selection in one confirm step. Every id must be an active zone-level
// node: the set is the dispatch filter, anything else would silently match
// nothing.
func (r *Repo) SetWorkZones(ctx context.Context, userID int64, zoneIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var valid int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM geo_nodes
		WHERE id = ANY($1) AND level = 'zone' AND active
	`, zoneIDs).Scan(&valid); err != nil {
		return err
	}
	if valid != len(zoneIDs) {
		return ErrInvalidZone
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_work_zones WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, zid := range zoneIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_work_zones (user_id, zone_id) VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, userID, zid); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListWorkZones(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT zone_id FROM user_work_zones WHERE user_id = $1 ORDER BY zone_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListTransportersByZone returns active transporters that opted into the
// zone. Pure set membership, no ranking.
func (r *Repo) ListTransportersByZone(ctx context.Context, zoneID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userCols+`
		FROM users u
		JOIN user_work_zones wz ON wz.user_id = u.id
		WHERE wz.zone_id = $1
		  AND u.status = 'active'
		  AND u.role IN ('transporter','both')
		ORDER BY u.id
	`, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var role, status string
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FullName, &u.Phone,
			&u.Language, &role, &status, &u.HomeNodeID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role, u.Status = Role(role), Status(status)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Counts returns basic directory statistics for the admin panel.
func (r *Repo) Counts(ctx context.Context) (total, active, transporters, requesters int64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE role IN ('transporter','both')),
		       COUNT(*) FILTER (WHERE role IN ('requester','both'))
		FROM users
	`).Scan(&total, &active, &transporters, &requesters)
	return
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role, status string
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FullName, &u.Phone,
		&u.Language, &role, &status, &u.HomeNodeID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role, u.Status = Role(role), Status(status)
	return &u, nil
}
