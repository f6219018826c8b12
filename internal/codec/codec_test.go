package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avms/gatepass/internal/codec"
	"github.com/avms/gatepass/internal/domain"
)

func samplePass() *domain.VisitorPass {
	return &domain.VisitorPass{
		ID:            "7f9c2ba4-e88f-11ee-a3b5-0242ac120002",
		OTP:           "0042",
		VisitorName:   "Rajesh Kumar",
		VisitorPhone:  "+91 98765 43210",
		Purpose:       "Delivery",
		ScheduledDate: "2026-08-29",
		ScheduledTime: "10:30",
		HostFlat:      "A101",
		Status:        domain.PassPending,
		CreatedAt:     time.Now(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pass := samplePass()

	raw, err := codec.Encode(pass)
	require.NoError(t, err)

	got, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, pass.ID, got.ID)
	assert.Equal(t, pass.OTP, got.OTP)
	assert.Equal(t, pass.VisitorName, got.VisitorName)
	assert.Equal(t, pass.HostFlat, got.HostFlat)
	assert.Equal(t, pass.ScheduledDate, got.ScheduledDate)
	assert.Equal(t, pass.ScheduledTime, got.ScheduledTime)
}

func TestDecodeLeadingZeroOTPSurvives(t *testing.T) {
	pass := samplePass()
	pass.OTP = "0007"

	raw, err := codec.Encode(pass)
	require.NoError(t, err)

	got, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "0007", got.OTP)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "definitely not json"},
		{"empty object", "{}"},
		{"missing otp", `{"id":"x","visitor_name":"A","host_flat":"B1","scheduled_date":"2026-08-29","scheduled_time":"10:30"}`},
		{"missing id", `{"otp":"1234","visitor_name":"A","host_flat":"B1","scheduled_date":"2026-08-29","scheduled_time":"10:30"}`},
		{"missing visitor_name", `{"id":"x","otp":"1234","host_flat":"B1","scheduled_date":"2026-08-29","scheduled_time":"10:30"}`},
		{"otp too short", `{"id":"x","otp":"123","visitor_name":"A","host_flat":"B1","scheduled_date":"2026-08-29","scheduled_time":"10:30"}`},
		{"otp not numeric", `{"id":"x","otp":"12a4","visitor_name":"A","host_flat":"B1","scheduled_date":"2026-08-29","scheduled_time":"10:30"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode(tc.raw)
			var dErr *domain.DecodeError
			require.ErrorAs(t, err, &dErr)
		})
	}
}

func TestValidOTP(t *testing.T) {
	assert.True(t, codec.ValidOTP("0000"))
	assert.True(t, codec.ValidOTP("9999"))
	assert.False(t, codec.ValidOTP("123"))
	assert.False(t, codec.ValidOTP("12345"))
	assert.False(t, codec.ValidOTP("12 4"))
	assert.False(t, codec.ValidOTP("١٢٣٤")) // non-ASCII digits
	assert.False(t, codec.ValidOTP(""))
}
