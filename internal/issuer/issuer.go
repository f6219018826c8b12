// Package issuer creates visitor passes: validates the request, generates
// the credential pair (id + OTP) and persists the Pending record.
package issuer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avms/gatepass/internal/codec"
	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/mailer"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/pkg/events"
	"github.com/avms/gatepass/pkg/logger"
)

// Random generates credential material. Injectable so tests can force
// collisions and fixed values.
type Random interface {
	PassID() string
	OTP() (string, error)
}

type cryptoRandom struct{}

func (cryptoRandom) PassID() string { return uuid.NewString() }

func (cryptoRandom) OTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func NewCryptoRandom() Random { return cryptoRandom{} }

type Issuer struct {
	store          store.PassStore
	mail           mailer.Service
	bus            events.Publisher
	random         Random
	now            func() time.Time
	otpMaxAttempts int
}

func New(s store.PassStore, mail mailer.Service, bus events.Publisher, random Random, now func() time.Time, otpMaxAttempts int) *Issuer {
	if now == nil {
		now = time.Now
	}
	if random == nil {
		random = NewCryptoRandom()
	}
	if otpMaxAttempts <= 0 {
		otpMaxAttempts = 25
	}
	return &Issuer{
		store:          s,
		mail:           mail,
		bus:            bus,
		random:         random,
		now:            now,
		otpMaxAttempts: otpMaxAttempts,
	}
}

// Issue validates the request, persists a new Pending pass and returns it
// together with the encoded QR payload.
func (i *Issuer) Issue(ctx context.Context, req *domain.IssueRequest) (*domain.IssuedPass, error) {
	if err := i.validate(req); err != nil {
		return nil, err
	}

	now := i.now()
	pass := &domain.VisitorPass{
		ID:             i.random.PassID(),
		VisitorName:    strings.TrimSpace(req.VisitorName),
		VisitorPhone:   strings.TrimSpace(req.VisitorPhone),
		VisitorEmail:   strings.TrimSpace(req.VisitorEmail),
		Purpose:        strings.TrimSpace(req.Purpose),
		ScheduledDate:  req.ScheduledDate,
		ScheduledTime:  req.ScheduledTime,
		HostFlat:       req.HostFlat,
		HostResidentID: req.HostResidentID,
		Status:         domain.PassPending,
		CreatedAt:      now,
	}

	// The OTP space is 10^4 wide; at human-speed issuance a collision is
	// rare and a retry loop that still fails means the space is saturated,
	// which is an operations problem, not a caller mistake.
	var created bool
	for attempt := 0; attempt < i.otpMaxAttempts; attempt++ {
		otp, err := i.random.OTP()
		if err != nil {
			return nil, fmt.Errorf("generate otp: %w", err)
		}
		pass.OTP = otp

		err = i.store.Create(ctx, pass)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, domain.ErrOTPInUse) {
			return nil, err
		}
	}
	if !created {
		return nil, fmt.Errorf("%w after %d attempts", domain.ErrOTPSpaceExhausted, i.otpMaxAttempts)
	}

	payload, err := codec.Encode(pass)
	if err != nil {
		return nil, err
	}

	if pass.VisitorEmail != "" && i.mail != nil {
		if err := i.mail.SendPassCredential(pass.VisitorEmail, pass.VisitorName, pass.OTP, payload); err != nil {
			// Credential is still returned to the issuing resident.
			logger.ErrorContext(ctx, "Failed to mail pass credential", "error", err, "pass_id", pass.ID)
		}
	}

	if i.bus != nil {
		event := events.PassIssuedEvent{
			PassID:        pass.ID,
			HostFlat:      pass.HostFlat,
			VisitorName:   pass.VisitorName,
			ScheduledDate: pass.ScheduledDate,
			ScheduledTime: pass.ScheduledTime,
			CreatedAt:     pass.CreatedAt,
		}
		if err := i.bus.Publish(ctx, events.PassIssued, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish pass issued event", "error", err, "pass_id", pass.ID)
		}
	}

	return &domain.IssuedPass{Pass: pass, Payload: payload}, nil
}

func (i *Issuer) validate(req *domain.IssueRequest) error {
	required := []struct{ field, value string }{
		{"visitor_name", req.VisitorName},
		{"visitor_phone", req.VisitorPhone},
		{"purpose", req.Purpose},
		{"scheduled_date", req.ScheduledDate},
		{"scheduled_time", req.ScheduledTime},
		{"host_flat", req.HostFlat},
		{"host_resident_id", req.HostResidentID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &domain.ValidationError{Field: f.field, Reason: "required"}
		}
	}

	day, err := time.ParseInLocation(domain.DateLayout, req.ScheduledDate, time.Local)
	if err != nil {
		return &domain.ValidationError{Field: "scheduled_date", Reason: "must be YYYY-MM-DD"}
	}
	if _, err := time.Parse(domain.TimeLayout, req.ScheduledTime); err != nil {
		return &domain.ValidationError{Field: "scheduled_time", Reason: "must be HH:MM (24h)"}
	}

	now := i.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if day.Before(today) {
		return &domain.ValidationError{Field: "scheduled_date", Reason: "must not be in the past"}
	}
	return nil
}
