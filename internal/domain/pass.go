package domain

import "time"

type PassStatus string

const (
	PassPending PassStatus = "pending"
	PassArrived PassStatus = "arrived"
	PassDenied  PassStatus = "denied"
	PassExpired PassStatus = "expired"
)

func ParsePassStatus(s string) (PassStatus, bool) {
	switch PassStatus(s) {
	case PassPending, PassArrived, PassDenied, PassExpired:
		return PassStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s PassStatus) Terminal() bool {
	return s == PassArrived || s == PassDenied || s == PassExpired
}

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case DecisionAllow, DecisionDeny:
		return Decision(s), true
	default:
		return "", false
	}
}

// Date and time layouts used across the wire and in the store.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type VisitorPass struct {
	ID  string `json:"id"`
	OTP string `json:"otp"`

	VisitorName  string `json:"visitor_name"`
	VisitorPhone string `json:"visitor_phone"`
	VisitorEmail string `json:"visitor_email,omitempty"`
	Purpose      string `json:"purpose"`

	ScheduledDate string `json:"scheduled_date"` // 2006-01-02
	ScheduledTime string `json:"scheduled_time"` // 15:04, 24h

	HostFlat       string `json:"host_flat"`
	HostResidentID string `json:"host_resident_id"`

	Status    PassStatus `json:"status"`
	ArrivedAt *time.Time `json:"arrived_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type IssueRequest struct {
	VisitorName    string `json:"visitor_name"`
	VisitorPhone   string `json:"visitor_phone"`
	VisitorEmail   string `json:"visitor_email,omitempty"`
	Purpose        string `json:"purpose"`
	ScheduledDate  string `json:"scheduled_date"`
	ScheduledTime  string `json:"scheduled_time"`
	HostFlat       string `json:"host_flat"`
	HostResidentID string `json:"host_resident_id"`
}

// IssuedPass is what the issuer hands back: the stored record plus the
// encoded QR payload for external rendering.
type IssuedPass struct {
	Pass    *VisitorPass `json:"pass"`
	Payload string       `json:"payload"`
}
