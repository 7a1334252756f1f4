// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"strings"
	"time"

	"codeberg.org/oliverandrich/readinglog/internal/i18n"
	"github.com/a-h/templ"
)

// CodeMessage composes the localized mail carrying a verification code.
// purpose selects subject and intro, e.g. "sign_up".
func CodeMessage(ctx context.Context, to, purpose, code string, validFor time.Duration) (Message, error) {
	subject := i18n.T(ctx, i18n.MsgCodeMailSubjectPrefix+purpose)
	intro := i18n.T(ctx, i18n.MsgCodeMailIntroPrefix+purpose)
	body := i18n.TData(ctx, i18n.MsgCodeMailBody, map[string]any{
		"Code":    code,
		"Minutes": int(validFor.Minutes()),
	})
	footer := i18n.T(ctx, i18n.MsgCodeMailFooter)

	html := templ.GetBuffer()
	defer templ.ReleaseBuffer(html)
	if err := codeMail(intro, code, body, footer).Render(ctx, html); err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: subject,
		Text:    strings.Join([]string{intro, body, footer}, "\n\n"),
		HTML:    html.String(),
	}, nil
}
