package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avms/gatepass/internal/domain"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *UserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type FrequentVisitorStore struct {
	mu      sync.RWMutex
	records map[string]*domain.FrequentVisitor
}

func NewFrequentVisitorStore() *FrequentVisitorStore {
	return &FrequentVisitorStore{records: make(map[string]*domain.FrequentVisitor)}
}

func (s *FrequentVisitorStore) Create(_ context.Context, fv *domain.FrequentVisitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fv
	s.records[fv.ID] = &cp
	return nil
}

func (s *FrequentVisitorStore) GetByID(_ context.Context, id string) (*domain.FrequentVisitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fv, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *fv
	return &cp, nil
}

func (s *FrequentVisitorStore) ListByResident(_ context.Context, residentID string) ([]domain.FrequentVisitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.FrequentVisitor
	for _, fv := range s.records {
		if fv.ResidentID == residentID {
			out = append(out, *fv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FrequentVisitorStore) Update(_ context.Context, fv *domain.FrequentVisitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[fv.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *fv
	s.records[fv.ID] = &cp
	return nil
}

func (s *FrequentVisitorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*domain.EmergencyAlert
}

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string]*domain.EmergencyAlert)}
}

func (s *AlertStore) Create(_ context.Context, a *domain.EmergencyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *AlertStore) List(_ context.Context) ([]domain.EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EmergencyAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.After(out[j].RaisedAt) })
	return out, nil
}

func (s *AlertStore) Acknowledge(_ context.Context, id, byUserID string, at time.Time) (*domain.EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if a.AcknowledgedAt == nil {
		t := at
		a.AcknowledgedAt = &t
		a.AcknowledgedBy = byUserID
	}
	cp := *a
	return &cp, nil
}
