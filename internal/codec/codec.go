// Package codec encodes and decodes the portable credential payload that
// ends up inside the QR code, and owns the OTP text format.
package codec

import (
	"encoding/json"
	"regexp"

	"github.com/avms/gatepass/internal/domain"
)

// Payload is the self-describing record embedded in a QR code. It carries
// enough for the verification engine to resolve the pass without a prior
// lookup key.
type Payload struct {
	ID            string `json:"id"`
	OTP           string `json:"otp"`
	VisitorName   string `json:"visitor_name"`
	HostFlat      string `json:"host_flat"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
}

var otpPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidOTP reports whether s is exactly 4 ASCII digits. OTPs are compared
// as strings; parsing them to integers would lose leading zeros.
func ValidOTP(s string) bool {
	return otpPattern.MatchString(s)
}

// Encode renders the QR content for a pass.
func Encode(p *domain.VisitorPass) (string, error) {
	raw, err := json.Marshal(Payload{
		ID:            p.ID,
		OTP:           p.OTP,
		VisitorName:   p.VisitorName,
		HostFlat:      p.HostFlat,
		ScheduledDate: p.ScheduledDate,
		ScheduledTime: p.ScheduledTime,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses scanned QR content back into payload fields.
func Decode(raw string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &domain.DecodeError{Reason: "malformed payload structure"}
	}
	switch {
	case p.ID == "":
		return nil, &domain.DecodeError{Reason: "missing id"}
	case p.OTP == "":
		return nil, &domain.DecodeError{Reason: "missing otp"}
	case p.VisitorName == "":
		return nil, &domain.DecodeError{Reason: "missing visitor_name"}
	case p.HostFlat == "":
		return nil, &domain.DecodeError{Reason: "missing host_flat"}
	case p.ScheduledDate == "":
		return nil, &domain.DecodeError{Reason: "missing scheduled_date"}
	case p.ScheduledTime == "":
		return nil, &domain.DecodeError{Reason: "missing scheduled_time"}
	}
	if !ValidOTP(p.OTP) {
		return nil, &domain.DecodeError{Reason: "otp must be 4 digits"}
	}
	return &p, nil
}
