// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the outcome taxonomy of the workflow services.
// Every failure carries a translatable user message that never reveals
// internal details, and a wrapped internal error for operator logs.
package apperr

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/readinglog/internal/i18n"
)

// Kind classifies a failure.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindStorage
	KindDelivery
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage"
	case KindDelivery:
		return "delivery"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Status is the HTTP status a handler should answer with.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified workflow failure.
type Error struct {
	Kind    Kind
	Message i18n.Message
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message.ID
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status hint of the failure kind.
func (e *Error) HTTPStatus() int { return e.Kind.Status() }

// New creates an Error with a message ID.
func New(kind Kind, messageID string, err error) *Error {
	return &Error{Kind: kind, Message: i18n.Message{ID: messageID}, Err: err}
}

func Validation(messageID string, err error) *Error {
	return New(KindValidation, messageID, err)
}

func Unauthorized(messageID string, err error) *Error {
	return New(KindUnauthorized, messageID, err)
}

func NotFound(messageID string, err error) *Error {
	return New(KindNotFound, messageID, err)
}

func Conflict(messageID string, err error) *Error {
	return New(KindConflict, messageID, err)
}

func Forbidden(messageID string, err error) *Error {
	return New(KindForbidden, messageID, err)
}

func RateLimited(err error) *Error {
	return New(KindRateLimited, i18n.MsgRateLimited, err)
}

// Storage wraps a database failure behind a generic message.
func Storage(err error) *Error {
	return New(KindStorage, i18n.MsgServerError, err)
}

// Delivery wraps a mail failure.
func Delivery(err error) *Error {
	return New(KindDelivery, i18n.MsgMailerError, err)
}

// From returns err as an *Error. Unclassified errors become storage
// failures.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Storage(err)
}

// KindOf returns the kind of err, or 0 for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	return From(err).Kind
}
