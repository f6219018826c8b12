package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/internal/query"
	"github.com/avms/gatepass/pkg/logger"
)

// writeDomainError maps the engine's typed errors onto the JSON envelope.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr *domain.ValidationError
		dErr *domain.DecodeError
		fErr *domain.AlreadyFinalizedError
	)
	switch {
	case errors.As(err, &vErr):
		response.BadRequest(w, vErr.Error())
	case errors.As(err, &dErr):
		response.WriteError(w, http.StatusBadRequest, dErr.Error(), response.CodeBadPayload)
	case errors.As(err, &fErr):
		// Surface the actual terminal status so the gate UI can explain
		// what happened.
		response.WriteErrorWithDetails(w, http.StatusConflict,
			"pass already finalized", response.CodeAlreadyFinalized, string(fErr.Status))
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "no matching pass")
	case errors.Is(err, domain.ErrExpired):
		response.WriteError(w, http.StatusGone, "pass expired", response.CodePassExpired)
	case errors.Is(err, domain.ErrConflictingCredential):
		// Invariant violation; already logged by the engine. Keep the
		// surface generic.
		response.InternalError(w, "verification failed")
	default:
		logger.ErrorContext(r.Context(), "Unhandled domain error", "error", err)
		response.InternalError(w, "internal error")
	}
}

// passFilter builds a query filter from the request's query string, scoped
// to flat (empty means all flats).
func passFilter(r *http.Request, flat string) (query.Filter, error) {
	f := query.Filter{
		Flat: flat,
		Text: r.URL.Query().Get("q"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParsePassStatus(s)
		if !ok {
			return f, &domain.ValidationError{Field: "status", Reason: "unknown status"}
		}
		f.Status = &status
	}
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.ParseInLocation(domain.DateLayout, s, time.Local)
		if err != nil {
			return f, &domain.ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		f.From = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.ParseInLocation(domain.DateLayout, s, time.Local)
		if err != nil {
			return f, &domain.ValidationError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		f.To = t
	}
	return f, nil
}
