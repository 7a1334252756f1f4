// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	authctx "codeberg.org/oliverandrich/readinglog/internal/auth"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"codeberg.org/oliverandrich/readinglog/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// MessageResponse is the body of a successful workflow step.
type MessageResponse struct {
	Message string `json:"message"`
}

// bind decodes the request into dest.
func bind(c echo.Context, dest any) error {
	if err := c.Bind(dest); err != nil {
		return badRequest(err)
	}
	return nil
}

// message answers with a translated message.
func message(c echo.Context, status int, id string, data map[string]any) error {
	return c.JSON(status, MessageResponse{
		Message: i18n.TData(c.Request().Context(), id, data),
	})
}

// sent answers a successful code delivery to addr.
func sent(c echo.Context, addr string) error {
	return message(c, http.StatusOK, i18n.MsgCodeSent, map[string]any{"Email": addr})
}

func setCookie(c echo.Context, cookie *http.Cookie) {
	if cookie != nil {
		c.SetCookie(cookie)
	}
}

// identity returns the caller resolved by the session middleware.
func identity(c echo.Context) *authctx.Identity {
	return authctx.GetIdentity(c.Request().Context())
}

func parseReason(s string) (verification.Reason, error) {
	reason, ok := verification.ParseReason(s)
	if !ok {
		return "", apperr.Validation(i18n.MsgInvalidCancelReason, nil)
	}
	return reason, nil
}
