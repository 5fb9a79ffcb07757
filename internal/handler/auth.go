package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/middleware"
	"github.com/devaloi/courier/internal/transport"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}

	u, err := h.Accounts.Register(r.Context(), strings.TrimSpace(req.Name), req.Email, req.Password)
	if err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, u)
}

// Login POST /api/login
// The token is returned in the body and set as the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}

	u, err := h.Accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}

	token, exp, err := h.Sessions.Issue(u)
	if err != nil {
		transport.DomainError(w, h.Log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   expiresIn(exp),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	transport.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body", domain.ErrValidation)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}
