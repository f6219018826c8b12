// Package verify adjudicates entry: it resolves a scanned payload or a
// manually entered OTP against the pass store and finalizes passes through
// the store's compare-and-swap transition.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/avms/gatepass/internal/codec"
	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/expiry"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/pkg/events"
	"github.com/avms/gatepass/pkg/logger"
)

type Engine struct {
	store store.PassStore
	bus   events.Publisher
	now   func() time.Time
}

func New(s store.PassStore, bus events.Publisher, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: s, bus: bus, now: now}
}

// VerifyQR resolves a scanned QR payload without finalizing the pass.
func (e *Engine) VerifyQR(ctx context.Context, payload string) (*domain.VisitorPass, error) {
	decoded, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}

	pass, err := e.store.GetByID(ctx, decoded.ID)
	if err != nil {
		return nil, err
	}
	// The payload's OTP must still match the stored one; a mismatch means
	// a stale or tampered credential.
	if pass.OTP != decoded.OTP {
		return nil, domain.ErrNotFound
	}
	return e.adjudicate(ctx, pass)
}

// VerifyOTP resolves a manually entered 4-digit code.
func (e *Engine) VerifyOTP(ctx context.Context, otp string) (*domain.VisitorPass, error) {
	if !codec.ValidOTP(otp) {
		return nil, &domain.ValidationError{Field: "otp", Reason: "must be exactly 4 digits"}
	}

	matches, err := e.store.FindByOTP(ctx, otp)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}

	now := e.now()
	var pending []domain.VisitorPass
	var valid []domain.VisitorPass
	for _, p := range matches {
		if p.Status != domain.PassPending {
			continue
		}
		pending = append(pending, p)
		if expiry.IsValid(&p, now) {
			valid = append(valid, p)
		}
	}

	switch {
	case len(valid) > 1:
		// Should be unreachable under the issuance uniqueness invariant.
		logger.ErrorContext(ctx, "OTP shared by multiple valid pending passes",
			"otp_matches", len(valid))
		return nil, domain.ErrConflictingCredential
	case len(valid) == 1:
		p := valid[0]
		return e.adjudicate(ctx, &p)
	case len(pending) > 0:
		// Pending but outside the window: adjudicate so the lazy expiry
		// transition is persisted.
		p := pending[0]
		return e.adjudicate(ctx, &p)
	default:
		// Only finalized passes carry this OTP; matches come newest first.
		return nil, &domain.AlreadyFinalizedError{Status: matches[0].Status}
	}
}

// adjudicate applies the resolution rules to a single pass: terminal
// statuses fail as AlreadyFinalized, passes outside their window fail as
// Expired (persisting the Pending -> Expired transition once past the
// window), and a valid Pending pass is returned untouched for the human
// allow/deny decision.
func (e *Engine) adjudicate(ctx context.Context, pass *domain.VisitorPass) (*domain.VisitorPass, error) {
	if pass.Status != domain.PassPending {
		return nil, &domain.AlreadyFinalizedError{Status: pass.Status}
	}

	now := e.now()
	if !expiry.IsValid(pass, now) {
		if expiry.IsPast(pass, now) {
			e.lazyExpire(ctx, pass, now)
		}
		return nil, domain.ErrExpired
	}
	return pass, nil
}

// lazyExpire persists Pending -> Expired at first observation. Losing the
// CAS to a concurrent verifier is fine; the pass is terminal either way.
func (e *Engine) lazyExpire(ctx context.Context, pass *domain.VisitorPass, observedAt time.Time) {
	_, err := e.store.UpdateStatus(ctx, pass.ID, domain.PassPending, domain.PassExpired, nil)
	if err != nil {
		if !errors.Is(err, domain.ErrStatusConflict) {
			logger.ErrorContext(ctx, "Failed to persist lazy expiry", "error", err, "pass_id", pass.ID)
		}
		return
	}
	pass.Status = domain.PassExpired

	if e.bus != nil {
		event := events.PassExpiredEvent{
			PassID:     pass.ID,
			HostFlat:   pass.HostFlat,
			ObservedAt: observedAt,
		}
		if err := e.bus.Publish(ctx, events.PassExpired, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish pass expired event", "error", err, "pass_id", pass.ID)
		}
	}
}

// Decide finalizes a Pending pass as Arrived or Denied. The store CAS is
// the race arbiter: of N concurrent calls exactly one succeeds, the rest
// surface the winner's terminal status.
func (e *Engine) Decide(ctx context.Context, id string, decision domain.Decision, at time.Time) (*domain.VisitorPass, error) {
	pass, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pass.Status != domain.PassPending {
		return nil, &domain.AlreadyFinalizedError{Status: pass.Status}
	}

	// Time may have advanced between resolve and decide.
	if !expiry.IsValid(pass, at) {
		if expiry.IsPast(pass, at) {
			e.lazyExpire(ctx, pass, at)
			return nil, &domain.AlreadyFinalizedError{Status: domain.PassExpired}
		}
		return nil, domain.ErrExpired
	}

	next := domain.PassDenied
	subject := events.PassDenied
	var arrivedAt *time.Time
	if decision == domain.DecisionAllow {
		next = domain.PassArrived
		subject = events.PassArrived
		t := at
		arrivedAt = &t
	}

	updated, err := e.store.UpdateStatus(ctx, id, domain.PassPending, next, arrivedAt)
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) && updated != nil {
			return nil, &domain.AlreadyFinalizedError{Status: updated.Status}
		}
		return nil, err
	}

	if e.bus != nil {
		event := events.PassDecidedEvent{
			PassID:    updated.ID,
			HostFlat:  updated.HostFlat,
			Status:    string(updated.Status),
			DecidedAt: at,
		}
		if err := e.bus.Publish(ctx, subject, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish pass decided event", "error", err, "pass_id", updated.ID)
		}
	}

	return updated, nil
}
