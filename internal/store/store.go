// Package store defines the persistence contracts. Implementations live in
// the memory and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/avms/gatepass/internal/domain"
)

// PassStore is the authoritative collection of visitor passes. Passes are
// never deleted; they remain as auditable history.
type PassStore interface {
	// Create inserts a new pass. The OTP-uniqueness check against other
	// active passes (pending and still inside their window at p.CreatedAt)
	// and the insert happen atomically; domain.ErrOTPInUse signals a
	// collision.
	Create(ctx context.Context, p *domain.VisitorPass) error

	GetByID(ctx context.Context, id string) (*domain.VisitorPass, error)

	// FindByOTP returns every pass carrying the OTP, regardless of status.
	// Callers filter; returning all matches lets the verification engine
	// detect credential conflicts instead of silently picking one.
	FindByOTP(ctx context.Context, otp string) ([]domain.VisitorPass, error)

	// UpdateStatus is the compare-and-swap transition primitive. It moves
	// the pass from expected to next atomically and stamps arrivedAt when
	// given. If the current status differs from expected it returns the
	// pass as-is together with domain.ErrStatusConflict; no two concurrent
	// calls on the same pass can both succeed.
	UpdateStatus(ctx context.Context, id string, expected, next domain.PassStatus, arrivedAt *time.Time) (*domain.VisitorPass, error)

	List(ctx context.Context) ([]domain.VisitorPass, error)
}

type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type FrequentVisitorStore interface {
	Create(ctx context.Context, fv *domain.FrequentVisitor) error
	GetByID(ctx context.Context, id string) (*domain.FrequentVisitor, error)
	ListByResident(ctx context.Context, residentID string) ([]domain.FrequentVisitor, error)
	Update(ctx context.Context, fv *domain.FrequentVisitor) error
	Delete(ctx context.Context, id string) error
}

type AlertStore interface {
	Create(ctx context.Context, a *domain.EmergencyAlert) error
	List(ctx context.Context) ([]domain.EmergencyAlert, error)
	// Acknowledge stamps the alert once; repeat calls are no-ops returning
	// the stored record.
	Acknowledge(ctx context.Context, id, byUserID string, at time.Time) (*domain.EmergencyAlert, error)
}
