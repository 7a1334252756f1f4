// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package csrf rejects cross-site writes carrying the session cookie.
// Production cookies are SameSite=None, so the browser attaches them to
// requests from any site. Unsafe requests must therefore come from the
// API's own origin or a trusted frontend origin.
package csrf

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"github.com/labstack/echo/v4"
)

// Middleware checks the Origin (or Referer) of unsafe requests against
// trusted. Requests without either header come from non-browser clients
// and pass.
func Middleware(trusted ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(trusted))
	for _, o := range trusted {
		if o = normalize(o); o != "" {
			allowed[o] = true
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if safeMethod(r.Method) {
				return next(c)
			}

			origin := r.Header.Get(echo.HeaderOrigin)
			if origin == "" {
				origin = r.Referer()
			}
			if origin == "" {
				return next(c)
			}

			o := normalize(origin)
			if allowed[o] || sameHost(o, r.Host) {
				return next(c)
			}

			slog.Warn("csrf_failure",
				"path", r.URL.Path,
				"method", r.Method,
				"origin", origin,
				"ip", c.RealIP(),
			)
			return apperr.Forbidden(i18n.MsgCrossSite, nil)
		}
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// normalize reduces an origin or referer to scheme://host[:port].
func normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func sameHost(origin, host string) bool {
	if origin == "" || host == "" {
		return false
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, host)
}
