// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"strings"
	"text/template"

	"github.com/samber/oops"
)

const (
	defaultVerificationSubject = "Verify your email address"
	defaultVerificationBody    = `Your verification code is {{.Code}}.

Enter this code to finish creating your account. If you did not sign up, you can ignore this message.
`
	defaultResetSubject = "Reset your password"
	defaultResetBody    = `Your password reset code is {{.Code}}.

If you did not ask to reset your password, you can ignore this message.
`
)

// Messages renders the subject and body of outgoing notifications.
type Messages struct {
	verificationSubject string
	verification        *template.Template
	resetSubject        string
	reset               *template.Template
}

// DefaultMessages returns the built-in message templates.
func DefaultMessages() *Messages {
	return &Messages{
		verificationSubject: defaultVerificationSubject,
		verification:        template.Must(template.New("verification").Parse(defaultVerificationBody)),
		resetSubject:        defaultResetSubject,
		reset:               template.Must(template.New("reset").Parse(defaultResetBody)),
	}
}

// Verification renders the signup verification message.
func (m *Messages) Verification(code string) (subject, body string, err error) {
	body, err = render(m.verification, code)
	return m.verificationSubject, body, err
}

// PasswordReset renders the password reset message.
func (m *Messages) PasswordReset(code string) (subject, body string, err error) {
	body, err = render(m.reset, code)
	return m.resetSubject, body, err
}

func render(tmpl *template.Template, code string) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, struct{ Code string }{Code: code}); err != nil {
		return "", oops.Code("NOTIFY_RENDER_FAILED").With("template", tmpl.Name()).Wrap(err)
	}
	return sb.String(), nil
}
