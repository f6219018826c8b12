package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/internal/platform/auth"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/pkg/logger"
)

type AuthHandler struct {
	Users    store.UserStore
	TokenTTL time.Duration
}

func NewAuthHandler(users store.UserStore, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{Users: users, TokenTTL: tokenTTL}
}

type loginIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginOut struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		response.BadRequest(w, "Email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(r.Context(), in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Unauthorized(w, "invalid credentials")
			return
		}
		logger.ErrorContext(r.Context(), "Failed to look up user", "error", err)
		response.InternalError(w, "login failed")
		return
	}

	ok, err := argon2id.ComparePasswordAndHash(in.Password, user.PasswordHash)
	if err != nil || !ok {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	token, err := auth.NewAccessToken(user.ID, user.Email, string(user.Role), user.Flat, h.TokenTTL)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to sign access token", "error", err)
		response.InternalError(w, "login failed")
		return
	}

	response.JSON(w, http.StatusOK, loginOut{Token: token, User: user})
}
