// Package expiry decides whether a pass is inside its validity window.
// Pure functions over an injected clock; nothing here reads wall time.
package expiry

import (
	"time"

	"github.com/avms/gatepass/internal/domain"
)

// Window returns the validity window of a pass: from its scheduled instant
// until the end of that calendar day. Malformed date/time fields yield an
// error; such a pass is never valid.
func Window(p *domain.VisitorPass) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(
		domain.DateLayout+" "+domain.TimeLayout,
		p.ScheduledDate+" "+p.ScheduledTime,
		time.Local,
	)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.Local)
	return start, day.AddDate(0, 0, 1), nil
}

// IsValid reports whether the pass may be verified at now: not before its
// scheduled instant and not past the end-of-day grace.
func IsValid(p *domain.VisitorPass, now time.Time) bool {
	start, end, err := Window(p)
	if err != nil {
		return false
	}
	return !now.Before(start) && now.Before(end)
}

// IsPast reports whether now is beyond the pass's window entirely. This is
// the cutoff for the lazy Pending -> Expired transition; a pass observed
// before its window has simply not started and must not be finalized.
func IsPast(p *domain.VisitorPass, now time.Time) bool {
	_, end, err := Window(p)
	if err != nil {
		return true
	}
	return !now.Before(end)
}
