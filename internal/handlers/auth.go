// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for login, logout and the session gate.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sess *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sess,
	}
}

// LoginRequest is the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// Login authenticates the caller and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.Request().Context(), auth.LoginParams{
		Email:        req.Email,
		Password:     req.Password,
		CurrentToken: h.sessions.TokenFromRequest(c.Request()),
	})
	if err != nil {
		return err
	}

	c.SetCookie(result.Cookie)
	return c.JSON(http.StatusOK, LoginResponse{
		Message: i18n.T(c.Request().Context(), i18n.MsgLoggedIn),
		ID:      result.AccountID,
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	cookie, err := h.auth.Logout(c.Request().Context(), h.sessions.TokenFromRequest(c.Request()))
	if err != nil {
		return err
	}

	c.SetCookie(cookie)
	return message(c, http.StatusOK, i18n.MsgLoggedOut, nil)
}

// VerifyTokenRequest names the route the frontend is about to open.
type VerifyTokenRequest struct {
	Route        string `json:"route"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// VerifyTokenResponse tells the frontend whether it must log in again.
type VerifyTokenResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Expired bool   `json:"expired"`
}

// VerifyToken gates frontend navigation. A valid session is extended by
// a fresh cookie.
func (h *AuthHandlers) VerifyToken(c echo.Context) error {
	var req VerifyTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	result, err := h.auth.VerifyAndRefresh(ctx, h.sessions.TokenFromRequest(c.Request()), req.Route, req.RequiresAuth)
	if err != nil {
		return err
	}

	if result.Expired {
		c.SetCookie(h.sessions.ClearCookie())
		return c.JSON(http.StatusUnauthorized, VerifyTokenResponse{
			Error:   i18n.T(ctx, i18n.MsgSessionInvalid),
			Expired: true,
		})
	}

	setCookie(c, result.Cookie)
	return c.JSON(http.StatusOK, VerifyTokenResponse{
		Message: i18n.T(ctx, i18n.MsgSessionValid),
	})
}
