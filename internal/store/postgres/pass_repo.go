// Package postgres holds the pgx-backed store implementations.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/expiry"
)

type PassRepo struct{ pool *pgxpool.Pool }

func NewPassRepo(pool *pgxpool.Pool) *PassRepo { return &PassRepo{pool: pool} }

const passCols = `id, otp, visitor_name, visitor_phone, visitor_email, purpose,
scheduled_date, scheduled_time, host_flat, host_resident_id,
status, arrived_at, created_at`

func (r *PassRepo) Create(ctx context.Context, p *domain.VisitorPass) error {
	// window_end lets SQL decide "still owns its OTP" without re-parsing
	// the schedule; the insert and the uniqueness check are one statement.
	_, windowEnd, err := expiry.Window(p)
	if err != nil {
		return err
	}

	// The NOT EXISTS check reads its own snapshot, so two concurrent
	// inserts with the same OTP can both pass it under READ COMMITTED.
	// The passes_active_otp partial unique index is the arbiter: the
	// loser's insert fails with a unique violation, mapped below.
	const q = `
INSERT INTO passes (
	id, otp, visitor_name, visitor_phone, visitor_email, purpose,
	scheduled_date, scheduled_time, host_flat, host_resident_id,
	status, created_at, window_end
)
SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
WHERE NOT EXISTS (
	SELECT 1 FROM passes
	WHERE otp = $2 AND status = 'pending' AND window_end > $12
)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q,
		p.ID, p.OTP, p.VisitorName, p.VisitorPhone, p.VisitorEmail, p.Purpose,
		p.ScheduledDate, p.ScheduledTime, p.HostFlat, p.HostResidentID,
		p.Status, p.CreatedAt, windowEnd,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOTPInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOTPInUse
	}
	return nil
}

// isUniqueViolation reports whether err is Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PassRepo) GetByID(ctx context.Context, id string) (*domain.VisitorPass, error) {
	const q = `SELECT ` + passCols + ` FROM passes WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := scanPass(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *PassRepo) FindByOTP(ctx context.Context, otp string) ([]domain.VisitorPass, error) {
	const q = `SELECT ` + passCols + ` FROM passes WHERE otp=$1 ORDER BY created_at DESC, id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, otp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VisitorPass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PassRepo) UpdateStatus(ctx context.Context, id string, expected, next domain.PassStatus, arrivedAt *time.Time) (*domain.VisitorPass, error) {
	const q = `
UPDATE passes
SET status = $3, arrived_at = $4
WHERE id = $1 AND status = $2
RETURNING ` + passCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var stamp *time.Time
	if next == domain.PassArrived {
		stamp = arrivedAt
	}
	p, err := scanPass(r.pool.QueryRow(ctx, q, id, expected, next, stamp))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// CAS miss: either the pass is gone or somebody transitioned it first.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, domain.ErrStatusConflict
}

func (r *PassRepo) List(ctx context.Context) ([]domain.VisitorPass, error) {
	const q = `SELECT ` + passCols + ` FROM passes ORDER BY created_at DESC, id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VisitorPass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPass(row pgx.Row) (*domain.VisitorPass, error) {
	var p domain.VisitorPass
	err := row.Scan(
		&p.ID, &p.OTP, &p.VisitorName, &p.VisitorPhone, &p.VisitorEmail, &p.Purpose,
		&p.ScheduledDate, &p.ScheduledTime, &p.HostFlat, &p.HostResidentID,
		&p.Status, &p.ArrivedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
