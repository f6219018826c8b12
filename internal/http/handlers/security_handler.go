package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/middleware"
	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/internal/query"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/internal/verify"
	"github.com/avms/gatepass/pkg/events"
	"github.com/avms/gatepass/pkg/logger"
)

type SecurityHandler struct {
	Engine *verify.Engine
	View   *query.View
	Alerts store.AlertStore
	Bus    events.Publisher
	Now    func() time.Time

	// VerifyOTPLimiter wraps only the manual-entry route.
	VerifyOTPLimiter func(http.Handler) http.Handler
}

func NewSecurityHandler(engine *verify.Engine, view *query.View, alerts store.AlertStore, bus events.Publisher, now func() time.Time) *SecurityHandler {
	if now == nil {
		now = time.Now
	}
	return &SecurityHandler{Engine: engine, View: view, Alerts: alerts, Bus: bus, Now: now}
}

func (h *SecurityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/scan", h.Scan)
	if h.VerifyOTPLimiter != nil {
		r.With(h.VerifyOTPLimiter).Post("/verify-otp", h.VerifyOTP)
	} else {
		r.Post("/verify-otp", h.VerifyOTP)
	}
	r.Post("/passes/{id}/decision", h.Decide)
	r.Get("/passes", h.ListPasses)
	r.Get("/passes/export", h.ExportPasses)
	r.Get("/alerts", h.ListAlerts)
	r.Post("/alerts/{id}/ack", h.AckAlert)
	return r
}

type scanIn struct {
	Payload string `json:"payload"`
}

func (h *SecurityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var in scanIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	pass, err := h.Engine.VerifyQR(r.Context(), in.Payload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, pass)
}

type verifyOTPIn struct {
	OTP string `json:"otp"`
}

func (h *SecurityHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in verifyOTPIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	pass, err := h.Engine.VerifyOTP(r.Context(), in.OTP)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, pass)
}

type decideIn struct {
	Decision string `json:"decision"`
}

func (h *SecurityHandler) Decide(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)
	if !p.CanDecide() {
		response.Forbidden(w, "only security staff decide entry")
		return
	}

	var in decideIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	decision, ok := domain.ParseDecision(in.Decision)
	if !ok {
		response.BadRequest(w, `Decision must be "allow" or "deny"`)
		return
	}

	pass, err := h.Engine.Decide(r.Context(), chi.URLParam(r, "id"), decision, h.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, pass)
}

func (h *SecurityHandler) ListPasses(w http.ResponseWriter, r *http.Request) {
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

func (h *SecurityHandler) ExportPasses(w http.ResponseWriter, r *http.Request) {
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

func (h *SecurityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Alerts.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list alerts", "error", err)
		response.InternalError(w, "failed to list alerts")
		return
	}
	response.JSON(w, http.StatusOK, alerts)
}

func (h *SecurityHandler) AckAlert(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.Principal(r)

	at := h.Now()
	alert, err := h.Alerts.Acknowledge(r.Context(), chi.URLParam(r, "id"), p.UserID, at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if h.Bus != nil {
		event := events.AlertAcknowledgedEvent{
			AlertID:        alert.ID,
			AcknowledgedBy: p.UserID,
			AcknowledgedAt: at,
		}
		if err := h.Bus.Publish(r.Context(), events.AlertAcknowledged, event); err != nil {
			logger.ErrorContext(r.Context(), "Failed to publish alert ack event", "error", err, "alert_id", alert.ID)
		}
	}

	response.JSON(w, http.StatusOK, alert)
}
