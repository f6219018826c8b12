package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avms/gatepass/internal/domain"
)

type FrequentVisitorRepo struct{ pool *pgxpool.Pool }

func NewFrequentVisitorRepo(pool *pgxpool.Pool) *FrequentVisitorRepo {
	return &FrequentVisitorRepo{pool: pool}
}

const frequentCols = `id, resident_id, name, phone, purpose, created_at, updated_at`

func (r *FrequentVisitorRepo) Create(ctx context.Context, fv *domain.FrequentVisitor) error {
	const q = `
INSERT INTO frequent_visitors (id, resident_id, name, phone, purpose, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, fv.ID, fv.ResidentID, fv.Name, fv.Phone, fv.Purpose, fv.CreatedAt, fv.UpdatedAt)
	return err
}

func (r *FrequentVisitorRepo) GetByID(ctx context.Context, id string) (*domain.FrequentVisitor, error) {
	const q = `SELECT ` + frequentCols + ` FROM frequent_visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanFrequent(r.pool.QueryRow(ctx, q, id))
}

func (r *FrequentVisitorRepo) ListByResident(ctx context.Context, residentID string) ([]domain.FrequentVisitor, error) {
	const q = `SELECT ` + frequentCols + ` FROM frequent_visitors WHERE resident_id=$1 ORDER BY name`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, residentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FrequentVisitor
	for rows.Next() {
		fv, err := scanFrequent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fv)
	}
	return out, rows.Err()
}

func (r *FrequentVisitorRepo) Update(ctx context.Context, fv *domain.FrequentVisitor) error {
	const q = `
UPDATE frequent_visitors
SET name=$2, phone=$3, purpose=$4, updated_at=$5
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, q, fv.ID, fv.Name, fv.Phone, fv.Purpose, fv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FrequentVisitorRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM frequent_visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanFrequent(row pgx.Row) (*domain.FrequentVisitor, error) {
	var fv domain.FrequentVisitor
	err := row.Scan(&fv.ID, &fv.ResidentID, &fv.Name, &fv.Phone, &fv.Purpose, &fv.CreatedAt, &fv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fv, nil
}

type AlertRepo struct{ pool *pgxpool.Pool }

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo { return &AlertRepo{pool: pool} }

const alertCols = `id, resident_id, flat, message, raised_at, acknowledged_at, COALESCE(acknowledged_by, '')`

func (r *AlertRepo) Create(ctx context.Context, a *domain.EmergencyAlert) error {
	const q = `
INSERT INTO emergency_alerts (id, resident_id, flat, message, raised_at)
VALUES ($1,$2,$3,$4,$5)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, a.ID, a.ResidentID, a.Flat, a.Message, a.RaisedAt)
	return err
}

func (r *AlertRepo) List(ctx context.Context) ([]domain.EmergencyAlert, error) {
	const q = `SELECT ` + alertCols + ` FROM emergency_alerts ORDER BY raised_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmergencyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AlertRepo) Acknowledge(ctx context.Context, id, byUserID string, at time.Time) (*domain.EmergencyAlert, error) {
	const q = `
UPDATE emergency_alerts
SET acknowledged_at = COALESCE(acknowledged_at, $2),
    acknowledged_by = COALESCE(NULLIF(acknowledged_by, ''), $3)
WHERE id = $1
RETURNING ` + alertCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanAlert(r.pool.QueryRow(ctx, q, id, at, byUserID))
}

func scanAlert(row pgx.Row) (*domain.EmergencyAlert, error) {
	var a domain.EmergencyAlert
	err := row.Scan(&a.ID, &a.ResidentID, &a.Flat, &a.Message, &a.RaisedAt, &a.AcknowledgedAt, &a.AcknowledgedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
