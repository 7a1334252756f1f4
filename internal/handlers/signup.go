// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"codeberg.org/oliverandrich/readinglog/internal/services/signup"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// SignUpHandlers contains handlers for account creation.
type SignUpHandlers struct {
	signup   *signup.Service
	sessions *session.Manager
}

// NewSignUp creates a new SignUpHandlers instance.
func NewSignUp(svc *signup.Service, sess *session.Manager) *SignUpHandlers {
	return &SignUpHandlers{signup: svc, sessions: sess}
}

// SignUpRequest is the request body for starting a sign-up.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest carries the address a workflow step applies to.
type EmailRequest struct {
	Email string `json:"email"`
}

// CodeRequest submits a verification code.
type CodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// CancelRequest withdraws a pending code. Type is "expire" or "cancel".
type CancelRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

// Initiate creates a pending account and mails its code.
func (h *SignUpHandlers) Initiate(c echo.Context) error {
	var req SignUpRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.signup.Initiate(c.Request().Context(), signup.Params{
		Email:        req.Email,
		Password:     req.Password,
		CurrentToken: h.sessions.TokenFromRequest(c.Request()),
	})
	if err != nil {
		return err
	}
	return message(c, http.StatusCreated, i18n.MsgCodeSent, map[string]any{"Email": addr})
}

// Confirm activates the pending account.
func (h *SignUpHandlers) Confirm(c echo.Context) error {
	var req CodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.signup.Confirm(c.Request().Context(), req.Email, req.Code); err != nil {
		return err
	}
	return message(c, http.StatusOK, i18n.MsgSignUpVerified, nil)
}

// Resend mails a fresh code for a pending account.
func (h *SignUpHandlers) Resend(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.signup.ResendCode(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return sent(c, addr)
}

// CancelCode removes the pending code, either because it expired on the
// client or because the user gave up.
func (h *SignUpHandlers) CancelCode(c echo.Context) error {
	var req CancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	reason, err := parseReason(req.Type)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if reason == verification.ReasonExpire {
		if err := h.signup.RemoveExpiredCode(ctx, req.Email); err != nil {
			return err
		}
		return message(c, http.StatusOK, i18n.MsgCodeExpired, nil)
	}

	if err := h.signup.Cancel(ctx, req.Email); err != nil {
		return err
	}
	return message(c, http.StatusOK, i18n.MsgSignUpCancelled, nil)
}

// Reset discards a pending account so the address can sign up again.
func (h *SignUpHandlers) Reset(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.signup.Reset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return message(c, http.StatusOK, i18n.MsgSignUpReset, nil)
}
