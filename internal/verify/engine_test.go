package verify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avms/gatepass/internal/codec"
	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/store/memory"
	"github.com/avms/gatepass/internal/verify"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordBus) Publish(_ context.Context, subject string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordBus) Close() error { return nil }

func (b *recordBus) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subjects...)
}

func seedPass(t *testing.T, s *memory.PassStore, id, otp, date, clock string, createdAt time.Time) *domain.VisitorPass {
	t.Helper()
	p := &domain.VisitorPass{
		ID:            id,
		OTP:           otp,
		VisitorName:   "Visitor " + id,
		VisitorPhone:  "555-0100",
		Purpose:       "Meeting",
		ScheduledDate: date,
		ScheduledTime: clock,
		HostFlat:      "A101",
		Status:        domain.PassPending,
		CreatedAt:     createdAt,
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestVerifyQRThenDecideAllow(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	bus := &recordBus{}
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, bus, clock.Now)

	p := seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))
	payload, err := codec.Encode(p)
	require.NoError(t, err)

	resolved, err := engine.VerifyQR(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "p1", resolved.ID)
	assert.Equal(t, domain.PassPending, resolved.Status)

	at := clock.Now()
	decided, err := engine.Decide(ctx, "p1", domain.DecisionAllow, at)
	require.NoError(t, err)
	assert.Equal(t, domain.PassArrived, decided.Status)
	require.NotNil(t, decided.ArrivedAt)
	assert.True(t, decided.ArrivedAt.Equal(at))

	assert.Equal(t, []string{"pass.arrived"}, bus.seen())

	// The losing second decision surfaces the winner's terminal state.
	_, err = engine.Decide(ctx, "p1", domain.DecisionDeny, clock.Now())
	var fErr *domain.AlreadyFinalizedError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, domain.PassArrived, fErr.Status)
}

func TestDecideDeny(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	bus := &recordBus{}
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, bus, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	decided, err := engine.Decide(ctx, "p1", domain.DecisionDeny, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.PassDenied, decided.Status)
	assert.Nil(t, decided.ArrivedAt)
	assert.Equal(t, []string{"pass.denied"}, bus.seen())
}

func TestVerifyQRBadPayload(t *testing.T) {
	engine := verify.New(memory.NewPassStore(), nil, nil)

	_, err := engine.VerifyQR(context.Background(), `{"id":"p1","visitor_name":"A","host_flat":"B1","scheduled_date":"2026-03-14","scheduled_time":"10:30"}`)
	var dErr *domain.DecodeError
	require.ErrorAs(t, err, &dErr)
}

func TestVerifyQRStaleOTP(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, nil, clock.Now)

	p := seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	stale := *p
	stale.OTP = "9999"
	payload, err := codec.Encode(&stale)
	require.NoError(t, err)

	_, err = engine.VerifyQR(ctx, payload)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, nil, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	resolved, err := engine.VerifyOTP(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "p1", resolved.ID)

	_, err = engine.VerifyOTP(ctx, "0000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = engine.VerifyOTP(ctx, "12ab")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "otp", vErr.Field)
}

func TestVerifyOTPExpiredYesterdayIsPersisted(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	bus := &recordBus{}
	clock := &fakeClock{t: time.Date(2026, 3, 15, 9, 0, 0, 0, time.Local)}
	engine := verify.New(s, bus, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	_, err := engine.VerifyOTP(ctx, "1234")
	assert.ErrorIs(t, err, domain.ErrExpired)

	stored, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PassExpired, stored.Status)
	assert.Equal(t, []string{"pass.expired"}, bus.seen())

	// Once expired is on record the OTP resolves to a finalized pass.
	_, err = engine.VerifyOTP(ctx, "1234")
	var fErr *domain.AlreadyFinalizedError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, domain.PassExpired, fErr.Status)
}

func TestVerifyBeforeWindowIsNotFinalized(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 8, 0, 0, 0, time.Local)}
	engine := verify.New(s, nil, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 7, 0, 0, 0, time.Local))

	_, err := engine.VerifyOTP(ctx, "1234")
	assert.ErrorIs(t, err, domain.ErrExpired)

	// Too early is not terminal; the pass stays pending for later.
	stored, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PassPending, stored.Status)

	clock.Set(time.Date(2026, 3, 14, 10, 30, 0, 0, time.Local))
	resolved, err := engine.VerifyOTP(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "p1", resolved.ID)
}

func TestVerifyOTPFinalizedOnly(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, nil, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))
	at := clock.Now()
	_, err := s.UpdateStatus(ctx, "p1", domain.PassPending, domain.PassArrived, &at)
	require.NoError(t, err)

	_, err = engine.VerifyOTP(ctx, "1234")
	var fErr *domain.AlreadyFinalizedError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, domain.PassArrived, fErr.Status)
}

// conflictStore fabricates the duplicate-OTP state that issuance is meant
// to prevent.
type conflictStore struct {
	*memory.PassStore
	duplicates []domain.VisitorPass
}

func (s *conflictStore) FindByOTP(context.Context, string) ([]domain.VisitorPass, error) {
	return s.duplicates, nil
}

func TestVerifyOTPConflictingCredential(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	dup := domain.VisitorPass{
		OTP:           "1234",
		ScheduledDate: "2026-03-14",
		ScheduledTime: "10:30",
		Status:        domain.PassPending,
		CreatedAt:     created,
	}
	a, b := dup, dup
	a.ID, b.ID = "p1", "p2"

	s := &conflictStore{
		PassStore:  memory.NewPassStore(),
		duplicates: []domain.VisitorPass{a, b},
	}
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, nil, clock.Now)

	_, err := engine.VerifyOTP(ctx, "1234")
	assert.ErrorIs(t, err, domain.ErrConflictingCredential)
}

func TestDecideExpiresStalePass(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	bus := &recordBus{}
	clock := &fakeClock{t: time.Date(2026, 3, 15, 9, 0, 0, 0, time.Local)}
	engine := verify.New(s, bus, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	_, err := engine.Decide(ctx, "p1", domain.DecisionAllow, clock.Now())
	var fErr *domain.AlreadyFinalizedError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, domain.PassExpired, fErr.Status)

	stored, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PassExpired, stored.Status)
	assert.Equal(t, []string{"pass.expired"}, bus.seen())
}

func TestDecideUnknownPass(t *testing.T) {
	engine := verify.New(memory.NewPassStore(), nil, nil)
	_, err := engine.Decide(context.Background(), "nope", domain.DecisionAllow, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecideConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := memory.NewPassStore()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)}
	engine := verify.New(s, &recordBus{}, clock.Now)

	seedPass(t, s, "p1", "1234", "2026-03-14", "10:30", time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local))

	const n = 16
	at := clock.Now()

	var wg sync.WaitGroup
	type outcome struct {
		pass *domain.VisitorPass
		err  error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		decision := domain.DecisionAllow
		if i%2 == 1 {
			decision = domain.DecisionDeny
		}
		wg.Add(1)
		go func(d domain.Decision) {
			defer wg.Done()
			p, err := engine.Decide(ctx, "p1", d, at)
			results <- outcome{p, err}
		}(decision)
	}
	wg.Wait()
	close(results)

	var wins int
	var winner domain.PassStatus
	for o := range results {
		if o.err == nil {
			wins++
			winner = o.pass.Status
			continue
		}
		var fErr *domain.AlreadyFinalizedError
		require.ErrorAs(t, o.err, &fErr)
	}
	require.Equal(t, 1, wins)

	stored, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, winner, stored.Status)
	assert.True(t, stored.Status.Terminal())
}
