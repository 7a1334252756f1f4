// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/apperr"
	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorHandler renders errors returned by handlers and middleware as JSON.
// Workflow failures carry a translated message. Internal details only go
// to the log.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorBody(c, err)
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

func errorBody(c echo.Context, err error) (int, ErrorResponse) {
	ctx := c.Request().Context()

	// apperr wins over an echo.HTTPError it wraps, e.g. bind failures.
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindStorage, apperr.KindDelivery:
			slog.Error("request failed", "path", c.Path(), "kind", appErr.Kind.String(), "error", appErr.Err)
		default:
			slog.Debug("request rejected", "path", c.Path(), "kind", appErr.Kind.String(), "error", appErr.Err)
		}
		return appErr.HTTPStatus(), ErrorResponse{Error: i18n.Localize(ctx, appErr.Message)}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, ErrorResponse{Error: msg}
	}

	slog.Error("unhandled error", "path", c.Path(), "error", err)
	return http.StatusInternalServerError, ErrorResponse{Error: i18n.T(ctx, i18n.MsgServerError)}
}

// badRequest wraps a malformed request body.
func badRequest(err error) error {
	return apperr.Validation(i18n.MsgInvalidRequest, fmt.Errorf("bind request: %w", err))
}
