package issuer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avms/gatepass/internal/codec"
	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/issuer"
	"github.com/avms/gatepass/internal/store/memory"
)

// stubRandom hands out scripted credentials.
type stubRandom struct {
	nextID int
	otps   []string
	calls  int
}

func (r *stubRandom) PassID() string {
	r.nextID++
	return fmt.Sprintf("pass-%d", r.nextID)
}

func (r *stubRandom) OTP() (string, error) {
	if r.calls >= len(r.otps) {
		return r.otps[len(r.otps)-1], nil
	}
	otp := r.otps[r.calls]
	r.calls++
	return otp, nil
}

type mailCall struct {
	to, name, otp, payload string
}

type stubMailer struct {
	calls []mailCall
	fail  bool
}

func (m *stubMailer) Send(string, string, string, string, string) (string, error) { return "", nil }

func (m *stubMailer) SendPassCredential(toEmail, visitorName, otp, payload string) error {
	m.calls = append(m.calls, mailCall{toEmail, visitorName, otp, payload})
	if m.fail {
		return errors.New("smtp unreachable")
	}
	return nil
}

type recordBus struct {
	subjects []string
}

func (b *recordBus) Publish(_ context.Context, subject string, _ interface{}) error {
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordBus) Close() error { return nil }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func validRequest() *domain.IssueRequest {
	return &domain.IssueRequest{
		VisitorName:    "  Rajesh Kumar ",
		VisitorPhone:   "555-0100",
		VisitorEmail:   "rajesh@example.com",
		Purpose:        "Plumbing repair",
		ScheduledDate:  "2026-03-14",
		ScheduledTime:  "10:30",
		HostFlat:       "A101",
		HostResidentID: "res-1",
	}
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	passes := memory.NewPassStore()
	mail := &stubMailer{}
	bus := &recordBus{}
	iss := issuer.New(passes, mail, bus, &stubRandom{otps: []string{"0042"}}, fixedClock(now), 0)

	issued, err := iss.Issue(ctx, validRequest())
	require.NoError(t, err)

	assert.Equal(t, "pass-1", issued.Pass.ID)
	assert.Equal(t, "0042", issued.Pass.OTP)
	assert.Equal(t, "Rajesh Kumar", issued.Pass.VisitorName)
	assert.Equal(t, domain.PassPending, issued.Pass.Status)
	assert.True(t, issued.Pass.CreatedAt.Equal(now))
	assert.Nil(t, issued.Pass.ArrivedAt)

	decoded, err := codec.Decode(issued.Payload)
	require.NoError(t, err)
	assert.Equal(t, issued.Pass.ID, decoded.ID)
	assert.Equal(t, "0042", decoded.OTP)

	stored, err := passes.GetByID(ctx, issued.Pass.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PassPending, stored.Status)

	require.Len(t, mail.calls, 1)
	assert.Equal(t, "rajesh@example.com", mail.calls[0].to)
	assert.Equal(t, "0042", mail.calls[0].otp)

	assert.Equal(t, []string{"pass.issued"}, bus.subjects)
}

func TestIssueWithoutEmailSkipsMail(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	mail := &stubMailer{}
	iss := issuer.New(memory.NewPassStore(), mail, nil, &stubRandom{otps: []string{"0042"}}, fixedClock(now), 0)

	req := validRequest()
	req.VisitorEmail = ""
	_, err := iss.Issue(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, mail.calls)
}

func TestIssueMailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	iss := issuer.New(memory.NewPassStore(), &stubMailer{fail: true}, nil, &stubRandom{otps: []string{"0042"}}, fixedClock(now), 0)

	issued, err := iss.Issue(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "0042", issued.Pass.OTP)
}

func TestIssueRetriesOnOTPCollision(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	passes := memory.NewPassStore()

	iss := issuer.New(passes, nil, nil, &stubRandom{otps: []string{"1111", "1111", "2222"}}, fixedClock(now), 0)

	first, err := iss.Issue(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "1111", first.Pass.OTP)

	second, err := iss.Issue(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "2222", second.Pass.OTP)
}

func TestIssueOTPSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	passes := memory.NewPassStore()

	seed := issuer.New(passes, nil, nil, &stubRandom{otps: []string{"1111"}}, fixedClock(now), 0)
	_, err := seed.Issue(ctx, validRequest())
	require.NoError(t, err)

	iss := issuer.New(passes, nil, nil, &stubRandom{otps: []string{"1111"}}, fixedClock(now), 3)
	_, err = iss.Issue(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrOTPSpaceExhausted)
}

func TestIssueValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)

	tests := []struct {
		name   string
		mutate func(*domain.IssueRequest)
		field  string
	}{
		{"missing name", func(r *domain.IssueRequest) { r.VisitorName = "  " }, "visitor_name"},
		{"missing phone", func(r *domain.IssueRequest) { r.VisitorPhone = "" }, "visitor_phone"},
		{"missing purpose", func(r *domain.IssueRequest) { r.Purpose = "" }, "purpose"},
		{"missing flat", func(r *domain.IssueRequest) { r.HostFlat = "" }, "host_flat"},
		{"bad date", func(r *domain.IssueRequest) { r.ScheduledDate = "14/03/2026" }, "scheduled_date"},
		{"bad time", func(r *domain.IssueRequest) { r.ScheduledTime = "10:30 AM" }, "scheduled_time"},
		{"past date", func(r *domain.IssueRequest) { r.ScheduledDate = "2026-03-13" }, "scheduled_date"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			iss := issuer.New(memory.NewPassStore(), nil, nil, &stubRandom{otps: []string{"0042"}}, fixedClock(now), 0)
			req := validRequest()
			tc.mutate(req)

			_, err := iss.Issue(context.Background(), req)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestIssueTodayIsNotPast(t *testing.T) {
	// Late in the evening the calendar day still counts as today.
	now := time.Date(2026, 3, 14, 23, 50, 0, 0, time.Local)
	iss := issuer.New(memory.NewPassStore(), nil, nil, &stubRandom{otps: []string{"0042"}}, fixedClock(now), 0)

	req := validRequest()
	req.ScheduledTime = "23:55"
	_, err := iss.Issue(context.Background(), req)
	require.NoError(t, err)
}
