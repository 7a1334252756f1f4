// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/services/account"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// AccountHandlers contains handlers for the signed-in account. All routes
// sit behind the session middleware.
type AccountHandlers struct {
	account *account.Service
}

// NewAccount creates a new AccountHandlers instance.
func NewAccount(svc *account.Service) *AccountHandlers {
	return &AccountHandlers{account: svc}
}

// EmailResponse carries the account's current address.
type EmailResponse struct {
	Email string `json:"email"`
}

// ChangePasswordRequest is the request body for a password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// NewEmailRequest names the address the account moves to.
type NewEmailRequest struct {
	NewEmail string `json:"new_email"`
}

// NewEmailCodeRequest confirms the move to NewEmail.
type NewEmailCodeRequest struct {
	NewEmail string `json:"new_email"`
	Code     string `json:"code"`
}

// EmailCancelRequest withdraws the pending email change.
type EmailCancelRequest struct {
	Type string `json:"type"`
}

// Email returns the current address.
func (h *AccountHandlers) Email(c echo.Context) error {
	addr, err := h.account.Email(c.Request().Context(), identity(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EmailResponse{Email: addr})
}

// ChangePassword replaces the password and renews the session cookie.
func (h *AccountHandlers) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cookie, err := h.account.ChangePassword(c.Request().Context(), identity(c), req.OldPassword, req.NewPassword)
	if err != nil {
		return err
	}

	c.SetCookie(cookie)
	return message(c, http.StatusOK, i18n.MsgPasswordChanged, nil)
}

// ActivityLogs returns one page of the audit trail, selected by ?page=.
func (h *AccountHandlers) ActivityLogs(c echo.Context) error {
	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(err)
		}
		page = n
	}

	result, err := h.account.ActivityLogs(c.Request().Context(), identity(c), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// SendCode mails a code to the new address.
func (h *AccountHandlers) SendCode(c echo.Context) error {
	var req NewEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.account.RequestChange(c.Request().Context(), identity(c), req.NewEmail)
	if err != nil {
		return err
	}
	return sent(c, addr)
}

// ResendCode mails a fresh code to the new address.
func (h *AccountHandlers) ResendCode(c echo.Context) error {
	var req NewEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	addr, err := h.account.Resend(c.Request().Context(), identity(c), req.NewEmail)
	if err != nil {
		return err
	}
	return sent(c, addr)
}

// CancelCode withdraws the pending change.
func (h *AccountHandlers) CancelCode(c echo.Context) error {
	var req EmailCancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	reason, err := parseReason(req.Type)
	if err != nil {
		return err
	}
	if err := h.account.Cancel(c.Request().Context(), identity(c), reason); err != nil {
		return err
	}

	if reason == verification.ReasonExpire {
		return message(c, http.StatusOK, i18n.MsgCodeExpired, nil)
	}
	return message(c, http.StatusOK, i18n.MsgEmailChangeCancelled, nil)
}

// VerifyCode moves the account to the new address and renews the session
// cookie.
func (h *AccountHandlers) VerifyCode(c echo.Context) error {
	var req NewEmailCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.account.Confirm(c.Request().Context(), identity(c), req.NewEmail, req.Code)
	if err != nil {
		return err
	}

	c.SetCookie(result.Cookie)
	return message(c, http.StatusOK, i18n.MsgEmailUpdated, nil)
}
