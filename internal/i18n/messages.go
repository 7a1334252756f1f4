// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

// Message IDs of user-facing texts. Every ID has an entry in each
// translations/active.*.toml file.
const (
	MsgInvalidRequest        = "error_invalid_request"
	MsgServerError           = "error_server"
	MsgMailerError           = "error_mailer"
	MsgRateLimited           = "error_rate_limited"
	MsgLogoutFirstSignUp     = "error_logout_first_signup"
	MsgLogoutFirstLogin      = "error_logout_first_login"
	MsgLogoutFirstRecovery   = "error_logout_first_recovery"
	MsgInvalidCredentials    = "error_invalid_credentials"
	MsgSessionInvalid        = "error_session_invalid"
	MsgNoToken               = "error_no_token"
	MsgInvalidCode           = "error_invalid_code"
	MsgInvalidEmail          = "error_invalid_email"
	MsgInvalidEmailFormat    = "error_invalid_email_format"
	MsgEmailTaken            = "error_email_taken"
	MsgWeakPassword          = "error_weak_password"
	MsgIncorrectPassword     = "error_incorrect_password"
	MsgNoPendingSignUp       = "error_no_pending_signup"
	MsgRecoveryNotVerified   = "error_recovery_not_verified"
	MsgInvalidCancelReason   = "error_invalid_cancel_reason"
	MsgCrossSite             = "error_cross_site"
	MsgCodeSent              = "success_code_sent"
	MsgRecoveryUniform       = "success_recovery_uniform"
	MsgCodeExpired           = "success_code_expired"
	MsgSignUpCancelled       = "success_signup_cancelled"
	MsgRecoveryCancelled     = "success_recovery_cancelled"
	MsgEmailChangeCancelled  = "success_email_change_cancelled"
	MsgSignUpReset           = "success_signup_reset"
	MsgSignUpVerified        = "success_signup_verified"
	MsgRecoveryVerified      = "success_recovery_verified"
	MsgPasswordChanged       = "success_password_changed"
	MsgEmailUpdated          = "success_email_updated"
	MsgLoggedIn              = "success_login"
	MsgLoggedOut             = "success_logout"
	MsgSessionValid          = "success_session_valid"
	MsgCodeMailBody          = "email_code_body"
	MsgCodeMailFooter        = "email_code_footer"
	MsgCodeMailSubjectPrefix = "email_code_subject_"
	MsgCodeMailIntroPrefix   = "email_code_intro_"
)
