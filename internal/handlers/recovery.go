// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/services/recovery"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// RecoveryHandlers contains handlers for password recovery.
type RecoveryHandlers struct {
	recovery *recovery.Service
	sessions *session.Manager
}

// NewRecovery creates a new RecoveryHandlers instance.
func NewRecovery(svc *recovery.Service, sess *session.Manager) *RecoveryHandlers {
	return &RecoveryHandlers{recovery: svc, sessions: sess}
}

// NewPasswordRequest sets the password after a verified code.
type NewPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *RecoveryHandlers) sent(c echo.Context, addr string) error {
	if h.recovery.UniformResponse() {
		return message(c, http.StatusOK, i18n.MsgRecoveryUniform, map[string]any{"Email": addr})
	}
	return sent(c, addr)
}

// Send mails a recovery code.
func (h *RecoveryHandlers) Send(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.recovery.Initiate(c.Request().Context(), req.Email, h.sessions.TokenFromRequest(c.Request()))
	if err != nil {
		return err
	}
	return h.sent(c, addr)
}

// Resend mails a fresh recovery code.
func (h *RecoveryHandlers) Resend(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.recovery.Resend(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return h.sent(c, addr)
}

// Cancel removes the pending recovery code.
func (h *RecoveryHandlers) Cancel(c echo.Context) error {
	var req CancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	reason, err := parseReason(req.Type)
	if err != nil {
		return err
	}
	if err := h.recovery.Cancel(c.Request().Context(), req.Email, reason); err != nil {
		return err
	}

	if reason == verification.ReasonExpire {
		return message(c, http.StatusOK, i18n.MsgCodeExpired, nil)
	}
	return message(c, http.StatusOK, i18n.MsgRecoveryCancelled, nil)
}

// Verify checks the recovery code and hands out the grant cookie needed
// to set a new password.
func (h *RecoveryHandlers) Verify(c echo.Context) error {
	var req CodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.recovery.Confirm(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}

	c.SetCookie(result.Cookie)
	return message(c, http.StatusOK, i18n.MsgRecoveryVerified, nil)
}

// SetPassword stores the new password. Spent or rejected grant cookies
// are cleared.
func (h *RecoveryHandlers) SetPassword(c echo.Context) error {
	var req NewPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	grant, err := c.Cookie(recovery.GrantCookieName)
	if err != nil {
		return apperr.Unauthorized(i18n.MsgRecoveryNotVerified, recovery.ErrGrantInvalid)
	}

	if err := h.recovery.SetNewPassword(c.Request().Context(), req.Email, req.Password, grant.Value); err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			c.SetCookie(h.recovery.ClearGrantCookie())
		}
		return err
	}

	c.SetCookie(h.recovery.ClearGrantCookie())
	return message(c, http.StatusOK, i18n.MsgPasswordChanged, nil)
}
