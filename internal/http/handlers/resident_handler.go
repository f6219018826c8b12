package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/middleware"
	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/internal/issuer"
	"github.com/avms/gatepass/internal/query"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/pkg/events"
	"github.com/avms/gatepass/pkg/logger"
)

type ResidentHandler struct {
	Issuer   *issuer.Issuer
	View     *query.View
	Frequent store.FrequentVisitorStore
	Alerts   store.AlertStore
	Bus      events.Publisher
	Now      func() time.Time
}

func NewResidentHandler(iss *issuer.Issuer, view *query.View, frequent store.FrequentVisitorStore, alerts store.AlertStore, bus events.Publisher, now func() time.Time) *ResidentHandler {
	if now == nil {
		now = time.Now
	}
	return &ResidentHandler{Issuer: iss, View: view, Frequent: frequent, Alerts: alerts, Bus: bus, Now: now}
}

func (h *ResidentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/passes", h.CreatePass)
	r.Get("/passes", h.ListPasses)
	r.Get("/passes/export", h.ExportPasses)

	r.Get("/frequent-visitors", h.ListFrequent)
	r.Post("/frequent-visitors", h.CreateFrequent)
	r.Put("/frequent-visitors/{id}", h.UpdateFrequent)
	r.Delete("/frequent-visitors/{id}", h.DeleteFrequent)
	r.Post("/frequent-visitors/{id}/invite", h.InviteFrequent)

	r.Post("/alerts", h.CreateAlert)
	return r
}

type createPassIn struct {
	VisitorName   string `json:"visitor_name"`
	VisitorPhone  string `json:"visitor_phone"`
	VisitorEmail  string `json:"visitor_email"`
	Purpose       string `json:"purpose"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
}

func (h *ResidentHandler) CreatePass(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	if !p.CanIssue() {
		response.Forbidden(w, "only residents issue passes")
		return
	}

	var in createPassIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	issued, err := h.Issuer.Issue(r.Context(), &domain.IssueRequest{
		VisitorName:    in.VisitorName,
		VisitorPhone:   in.VisitorPhone,
		VisitorEmail:   in.VisitorEmail,
		Purpose:        in.Purpose,
		ScheduledDate:  in.ScheduledDate,
		ScheduledTime:  in.ScheduledTime,
		HostFlat:       p.Flat,
		HostResidentID: p.UserID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, issued)
}

func (h *ResidentHandler) ListPasses(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	f, err := passFilter(r, p.QueryScope())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	passes, err := h.View.List(r.Context(), f)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list passes", "error", err)
		response.InternalError(w, "failed to list passes")
		return
	}
	response.JSON(w, http.StatusOK, passes)
}

func (h *ResidentHandler) ExportPasses(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	f, err := passFilter(r, p.QueryScope())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		`attachment; filename="visitor-history-`+h.Now().Format(domain.DateLayout)+`.csv"`)
	if err := h.View.ExportCSV(r.Context(), w, f); err != nil {
		logger.ErrorContext(r.Context(), "Failed to export passes", "error", err)
	}
}

type frequentIn struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
}

func (h *ResidentHandler) ListFrequent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	list, err := h.Frequent.ListByResident(r.Context(), p.UserID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list frequent visitors", "error", err)
		response.InternalError(w, "failed to list frequent visitors")
		return
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *ResidentHandler) CreateFrequent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)

	var in frequentIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Phone) == "" {
		response.BadRequest(w, "Name and phone are required")
		return
	}

	now := h.Now()
	fv := &domain.FrequentVisitor{
		ID:         uuid.NewString(),
		ResidentID: p.UserID,
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
		Purpose:    strings.TrimSpace(in.Purpose),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Frequent.Create(r.Context(), fv); err != nil {
		logger.ErrorContext(r.Context(), "Failed to create frequent visitor", "error", err)
		response.InternalError(w, "failed to save frequent visitor")
		return
	}
	response.JSON(w, http.StatusCreated, fv)
}

func (h *ResidentHandler) UpdateFrequent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	fv, ok := h.ownedFrequent(w, r, p.UserID)
	if !ok {
		return
	}

	var in frequentIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(in.Name) != "" {
		fv.Name = strings.TrimSpace(in.Name)
	}
	if strings.TrimSpace(in.Phone) != "" {
		fv.Phone = strings.TrimSpace(in.Phone)
	}
	if strings.TrimSpace(in.Purpose) != "" {
		fv.Purpose = strings.TrimSpace(in.Purpose)
	}
	fv.UpdatedAt = h.Now()

	if err := h.Frequent.Update(r.Context(), fv); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, fv)
}

func (h *ResidentHandler) DeleteFrequent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	fv, ok := h.ownedFrequent(w, r, p.UserID)
	if !ok {
		return
	}
	if err := h.Frequent.Delete(r.Context(), fv.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteIn struct {
	ScheduledTime string `json:"scheduled_time"`
}

// InviteFrequent issues a pass for today pre-filled from the template.
func (h *ResidentHandler) InviteFrequent(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	fv, ok := h.ownedFrequent(w, r, p.UserID)
	if !ok {
		return
	}

	var in inviteIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	purpose := fv.Purpose
	if purpose == "" {
		purpose = "Visit"
	}
	issued, err := h.Issuer.Issue(r.Context(), &domain.IssueRequest{
		VisitorName:    fv.Name,
		VisitorPhone:   fv.Phone,
		Purpose:        purpose,
		ScheduledDate:  h.Now().Format(domain.DateLayout),
		ScheduledTime:  in.ScheduledTime,
		HostFlat:       p.Flat,
		HostResidentID: p.UserID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, issued)
}

func (h *ResidentHandler) ownedFrequent(w http.ResponseWriter, r *http.Request, residentID string) (*domain.FrequentVisitor, bool) {
	fv, err := h.Frequent.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if fv.ResidentID != residentID {
		response.NotFound(w, "no matching frequent visitor")
		return nil, false
	}
	return fv, true
}

type alertIn struct {
	Message string `json:"message"`
}

func (h *ResidentHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)

	var in alertIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	alert := &domain.EmergencyAlert{
		ID:         uuid.NewString(),
		ResidentID: p.UserID,
		Flat:       p.Flat,
		Message:    strings.TrimSpace(in.Message),
		RaisedAt:   h.Now(),
	}
	if err := h.Alerts.Create(r.Context(), alert); err != nil {
		logger.ErrorContext(r.Context(), "Failed to create alert", "error", err)
		response.InternalError(w, "failed to raise alert")
		return
	}

	if h.Bus != nil {
		event := events.AlertRaisedEvent{AlertID: alert.ID, Flat: alert.Flat, RaisedAt: alert.RaisedAt}
		if err := h.Bus.Publish(r.Context(), events.AlertRaised, event); err != nil {
			logger.ErrorContext(r.Context(), "Failed to publish alert event", "error", err, "alert_id", alert.ID)
		}
	}

	response.JSON(w, http.StatusCreated, alert)
}
