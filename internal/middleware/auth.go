// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	authctx "codeberg.org/oliverandrich/readinglog/internal/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/auth"
	"codeberg.org/oliverandrich/readinglog/internal/services/session"
	"github.com/labstack/echo/v4"
)

// RequireSession resolves the session cookie to an identity and stores it
// in the request context. Requests without a current session are
// rejected with 401.
func RequireSession(svc *auth.Service, sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			identity, err := svc.Authenticate(req.Context(), sessions.TokenFromRequest(req))
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(authctx.WithIdentity(req.Context(), identity)))
			return next(c)
		}
	}
}
