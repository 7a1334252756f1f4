// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import "codeberg.org/oliverandrich/readinglog/internal/models"

// Purpose tags the workflow a code belongs to.
type Purpose string

const (
	PurposeSignUp      Purpose = "sign_up"
	PurposeRecovery    Purpose = "password_recovery"
	PurposeEmailChange Purpose = "email_change"
)

// Reason tells why a pending code is discarded.
type Reason string

const (
	// ReasonExpire is reported by the client timer once a code ran out.
	ReasonExpire Reason = "expire"
	// ReasonCancel is an explicit user abort.
	ReasonCancel Reason = "cancel"
)

// ParseReason converts a request value to a Reason.
func ParseReason(s string) (Reason, bool) {
	switch Reason(s) {
	case ReasonExpire, ReasonCancel:
		return Reason(s), true
	}
	return "", false
}

type entry struct {
	Type        models.LogType
	Description string
}

// phrasing holds the audit log entries of one purpose.
type phrasing struct {
	Issued   entry
	Resent   entry
	Expired  entry
	Canceled entry
	Verified entry
	Sent     entry
}

var phrasings = map[Purpose]phrasing{
	PurposeSignUp: {
		Issued:   entry{models.LogTypeSystem, "System has created a verification code for the user"},
		Resent:   entry{models.LogTypeUser, "User resent a new verification code during sign-up"},
		Expired:  entry{models.LogTypeSystem, "Verification code expired during sign-up process"},
		Canceled: entry{models.LogTypeUser, "User cancelled the sign-up process"},
		Verified: entry{models.LogTypeUser, "User successfully verified their email"},
		Sent:     entry{models.LogTypeSystem, "System successfully sent a verification code to the user's email"},
	},
	PurposeRecovery: {
		Issued:   entry{models.LogTypeUser, "User initiated a password recovery process"},
		Resent:   entry{models.LogTypeUser, "User resent a new verification code"},
		Expired:  entry{models.LogTypeSystem, "Verification code expired during password recovery process"},
		Canceled: entry{models.LogTypeUser, "User cancelled the password recovery process"},
		Verified: entry{models.LogTypeUser, "User successfully verified their email during password recovery"},
		Sent:     entry{models.LogTypeSystem, "System successfully sent a password recovery code to the user's email"},
	},
	PurposeEmailChange: {
		Issued:   entry{models.LogTypeUser, "User initiated a change email process"},
		Resent:   entry{models.LogTypeUser, "User resent a new verification code during email change process"},
		Expired:  entry{models.LogTypeSystem, "Verification code expired during the change email process"},
		Canceled: entry{models.LogTypeUser, "User cancelled their change email process"},
		Verified: entry{models.LogTypeUser, "User successfully verified their new email"},
		Sent:     entry{models.LogTypeSystem, "System successfully sent a verification code to the user's new email"},
	},
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := phrasings[p]
	return ok
}

func (p Purpose) String() string { return string(p) }
