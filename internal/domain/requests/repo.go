package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAlreadyTaken is the uniform outcome for a transporter that lost the
	// reservation race or tried to accept a closed request. The two cases are
	// deliberately indistinguishable to the caller.
	ErrAlreadyTaken = errors.New("requests: no longer available")

	// ErrInvalidState means the operation is not permitted from the request's
	// current state.
	ErrInvalidState = errors.New("requests: operation not allowed in current state")

	// ErrNotOwner means the caller is not the requester that owns the request.
	ErrNotOwner = errors.New("requests: caller does not own this request")

	ErrNotFound = errors.New("requests: not found")

	// ErrInvalidZone means the scope is not an active zone-level node.
	ErrInvalidZone = errors.New("requests: scope must be an active zone")
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const reqCols = `id, requester_id, zone_id, vehicle_type, cargo_type, description,
	pickup, dropoff, budget, status, transporter_id, confirm_deadline, created_at`

func (r *Repo) Create(ctx context.Context, requesterID, zoneID int64, p Payload) (*Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Dispatch matches on zone membership only; a request scoped to any
	// other node would never reach a transporter. Callback ids are
	// client-supplied, so the check lives here and not in the keyboards.
	var validZone bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM geo_nodes WHERE id = $1 AND level = 'zone' AND active
		)
	`, zoneID).Scan(&validZone); err != nil {
		return nil, err
	}
	if !validZone {
		return nil, ErrInvalidZone
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO requests (requester_id, zone_id, vehicle_type, cargo_type,
			description, pickup, dropoff, budget, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'active')
		RETURNING `+reqCols,
		requesterID, zoneID, p.VehicleType, p.CargoType, p.Description, p.Pickup, p.Dropoff, p.Budget)
	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, tx, requesterID, "request_created", fmt.Sprintf("request=%d zone=%d", req.ID, zoneID)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// TryReserve is the race-critical transition. A single conditional UPDATE
// guarded on status makes the winner; everyone else sees zero rows affected
// and gets ErrAlreadyTaken. Never read-then-write here.
func (r *Repo) TryReserve(ctx context.Context, id, transporterID int64, now time.Time) (*Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE requests
		SET status = 'pending_confirmation',
		    transporter_id = $2,
		    confirm_deadline = $3
		WHERE id = $1 AND status = 'active'
		RETURNING `+reqCols,
		id, transporterID, now.Add(ConfirmWindow))
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyTaken
		}
		return nil, err
	}
	if err := audit(ctx, tx, transporterID, "request_reserved", fmt.Sprintf("request=%d", id)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// Confirm closes the deal. Only the owning requester may confirm, and only
// from pending_confirmation. The closed-request history row is written in
// the same transaction.
func (r *Repo) Confirm(ctx context.Context, id, requesterID int64) (*Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE requests
		SET status = 'confirmed', confirm_deadline = NULL
		WHERE id = $1 AND requester_id = $2 AND status = 'pending_confirmation'
		RETURNING `+reqCols, id, requesterID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classify(ctx, id, requesterID)
		}
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO closed_requests (request_id, transporter_id)
		VALUES ($1,$2)
		ON CONFLICT (request_id) DO NOTHING
	`, id, req.TransporterID); err != nil {
		return nil, err
	}
	if err := audit(ctx, tx, requesterID, "request_confirmed", fmt.Sprintf("request=%d", id)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// Reject reverts the reservation: back to active, transporter and deadline
// cleared, dispatchable again.
func (r *Repo) Reject(ctx context.Context, id, requesterID int64) (*Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE requests
		SET status = 'active', transporter_id = NULL, confirm_deadline = NULL
		WHERE id = $1 AND requester_id = $2 AND status = 'pending_confirmation'
		RETURNING `+reqCols, id, requesterID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classify(ctx, id, requesterID)
		}
		return nil, err
	}
	if err := audit(ctx, tx, requesterID, "request_rejected", fmt.Sprintf("request=%d", id)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// ExpireIfDue is the sweeper's revert. Same transition as Reject but
// additionally conditioned on the deadline, so it can never race a
// concurrent confirm or reject: whichever statement lands first wins and
// the other sees zero rows. Returns (nil, nil) when there was nothing to do,
// which makes re-sweeping idempotent.
func (r *Repo) ExpireIfDue(ctx context.Context, id int64, now time.Time) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE requests
		SET status = 'active', transporter_id = NULL, confirm_deadline = NULL
		WHERE id = $1 AND status = 'pending_confirmation' AND confirm_deadline < $2
		RETURNING `+reqCols, id, now)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// Cancel withdraws an active request. Only the owner, only from active.
func (r *Repo) Cancel(ctx context.Context, id, requesterID int64) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE requests
		SET status = 'cancelled'
		WHERE id = $1 AND requester_id = $2 AND status = 'active'
		RETURNING `+reqCols, id, requesterID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classify(ctx, id, requesterID)
		}
		return nil, err
	}
	return req, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reqCols+` FROM requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// ListDue returns reservations whose confirmation window has elapsed.
func (r *Repo) ListDue(ctx context.Context, now time.Time) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reqCols+`
		FROM requests
		WHERE status = 'pending_confirmation' AND confirm_deadline < $1
		ORDER BY confirm_deadline
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *Repo) ListByRequester(ctx context.Context, requesterID int64) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reqCols+`
		FROM requests
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// CountByStatus returns request totals for the admin panel.
func (r *Repo) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Status]int64{}
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[Status(s)] = n
	}
	return out, rows.Err()
}

// classify turns a zero-row conditional update into the right error: absent
// id, wrong owner, or wrong state. Read-after-failed-write is safe here; the
// state transition itself already happened (or didn't) atomically above.
func (r *Repo) classify(ctx context.Context, id, requesterID int64) error {
	req, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrNotFound
	}
	if req.RequesterID != requesterID {
		return ErrNotOwner
	}
	return ErrInvalidState
}

func audit(ctx context.Context, tx pgx.Tx, userID int64, action, details string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_log (user_id, action, details) VALUES ($1,$2,$3)
	`, userID, action, details)
	return err
}

func scanRequest(row pgx.Row) (*Request, error) {
	var q Request
	var status string
	if err := row.Scan(&q.ID, &q.RequesterID, &q.ZoneID,
		&q.Payload.VehicleType, &q.Payload.CargoType, &q.Payload.Description,
		&q.Payload.Pickup, &q.Payload.Dropoff, &q.Payload.Budget,
		&status, &q.TransporterID, &q.ConfirmDeadline, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.Status = Status(status)
	return &q, nil
}
