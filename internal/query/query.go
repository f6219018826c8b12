// Package query is the read-only projection over the pass store: list
// filtering for dashboards and the CSV export. It never mutates.
package query

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/store"
)

type Filter struct {
	Status *domain.PassStatus
	// From and To bound the scheduled date (inclusive); zero values are
	// open ends.
	From time.Time
	To   time.Time
	// Text matches case-insensitively against visitor name, phone and
	// purpose; host flat too when the caller sees all flats.
	Text string
	// Flat scopes the listing to one host flat; empty means all flats
	// (security scope).
	Flat string
}

type View struct {
	store store.PassStore
}

func New(s store.PassStore) *View { return &View{store: s} }

// List returns matching passes ordered most recent createdAt first, ties
// broken by id.
func (v *View) List(ctx context.Context, f Filter) ([]domain.VisitorPass, error) {
	passes, err := v.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.VisitorPass
	for _, p := range passes {
		if v.matches(&p, f) {
			out = append(out, p)
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

func (v *View) matches(p *domain.VisitorPass, f Filter) bool {
	if f.Flat != "" && p.HostFlat != f.Flat {
		return false
	}
	if f.Status != nil && p.Status != *f.Status {
		return false
	}

	if !f.From.IsZero() || !f.To.IsZero() {
		day, err := time.ParseInLocation(domain.DateLayout, p.ScheduledDate, time.Local)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
			return false
		}
		if !f.To.IsZero() && day.After(truncateDay(f.To)) {
			return false
		}
	}

	if q := strings.ToLower(strings.TrimSpace(f.Text)); q != "" {
		hit := strings.Contains(strings.ToLower(p.VisitorName), q) ||
			strings.Contains(p.VisitorPhone, q) ||
			strings.Contains(strings.ToLower(p.Purpose), q)
		if !hit && f.Flat == "" {
			hit = strings.Contains(strings.ToLower(p.HostFlat), q)
		}
		if !hit {
			return false
		}
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

var exportHeader = []string{"Name", "Phone", "Purpose", "Date", "Time", "Status", "OTP", "Arrived At"}

// ExportCSV writes one row per matching pass, no aggregation.
func (v *View) ExportCSV(ctx context.Context, w io.Writer, f Filter) error {
	passes, err := v.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range passes {
		arrived := "-"
		if p.ArrivedAt != nil {
			arrived = p.ArrivedAt.Format(time.RFC3339)
		}
		row := []string{
			p.VisitorName,
			p.VisitorPhone,
			p.Purpose,
			p.ScheduledDate,
			p.ScheduledTime,
			string(p.Status),
			p.OTP,
			arrived,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
