// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/readinglog/internal/handlers"
	"codeberg.org/oliverandrich/readinglog/internal/middleware"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, svc *Services) {
	h := handlers.New(svc.Repo)
	authH := handlers.NewAuth(svc.Auth, svc.Sessions)
	signupH := handlers.NewSignUp(svc.SignUp, svc.Sessions)
	recoveryH := handlers.NewRecovery(svc.Recovery, svc.Sessions)
	accountH := handlers.NewAccount(svc.Account)

	e.GET("/health", h.Health)

	api := e.Group("/api")

	// Sign-up
	api.POST("/sign-up", signupH.Initiate)
	api.DELETE("/sign-up", signupH.Reset)
	api.POST("/sign-up/verification-code", signupH.Confirm)
	api.POST("/sign-up/resend-verification-code", signupH.Resend)
	api.POST("/sign-up/cancel-verification-code", signupH.CancelCode)

	// Authentication
	api.POST("/authentication/login", authH.Login)
	api.POST("/authentication/logout", authH.Logout)
	api.POST("/authentication/verify-token", authH.VerifyToken)

	// Password recovery
	api.POST("/password-recovery/send-verification-code", recoveryH.Send)
	api.POST("/password-recovery/cancel-verification-code", recoveryH.Cancel)
	api.POST("/password-recovery/resend-verification-code", recoveryH.Resend)
	api.POST("/password-recovery/verify-verification-code", recoveryH.Verify)
	api.POST("/password-recovery", recoveryH.SetPassword)

	// Account (requires a session)
	acc := api.Group("/account", middleware.RequireSession(svc.Auth, svc.Sessions))
	acc.GET("/email", accountH.Email)
	acc.PUT("/password", accountH.ChangePassword)
	acc.GET("/activity-logs", accountH.ActivityLogs)
	acc.POST("/email/send-verification-code", accountH.SendCode)
	acc.POST("/email/cancel-verification-code", accountH.CancelCode)
	acc.POST("/email/resend-verification-code", accountH.ResendCode)
	acc.POST("/email/verify-verification-code", accountH.VerifyCode)
}
