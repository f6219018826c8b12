// Package memory holds in-process store implementations used in dev mode
// and tests. All mutating pass operations serialize on one mutex, which is
// plenty at human-speed gate traffic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/expiry"
)

type PassStore struct {
	mu     sync.RWMutex
	passes map[string]*domain.VisitorPass
}

func NewPassStore() *PassStore {
	return &PassStore{passes: make(map[string]*domain.VisitorPass)}
}

func (s *PassStore) Create(_ context.Context, p *domain.VisitorPass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.passes {
		if other.OTP != p.OTP || other.Status != domain.PassPending {
			continue
		}
		// A pending pass whose window has not closed yet still owns its
		// OTP, even if the window has not opened.
		if !expiry.IsPast(other, p.CreatedAt) {
			return domain.ErrOTPInUse
		}
	}

	cp := *p
	s.passes[p.ID] = &cp
	return nil
}

func (s *PassStore) GetByID(_ context.Context, id string) (*domain.VisitorPass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.passes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PassStore) FindByOTP(_ context.Context, otp string) ([]domain.VisitorPass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.VisitorPass
	for _, p := range s.passes {
		if p.OTP == otp {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PassStore) UpdateStatus(_ context.Context, id string, expected, next domain.PassStatus, arrivedAt *time.Time) (*domain.VisitorPass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.passes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Status != expected {
		cp := *p
		return &cp, domain.ErrStatusConflict
	}
	p.Status = next
	p.ArrivedAt = nil
	if next == domain.PassArrived && arrivedAt != nil {
		t := *arrivedAt
		p.ArrivedAt = &t
	}
	cp := *p
	return &cp, nil
}

func (s *PassStore) List(_ context.Context) ([]domain.VisitorPass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.VisitorPass, 0, len(s.passes))
	for _, p := range s.passes {
		out = append(out, *p)
	}
	return out, nil
}
