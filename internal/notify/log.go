// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/authgate/internal/auth"
)

// LogNotifier writes codes to the log instead of sending them. It is meant
// for local development, where no mail server is available.
type LogNotifier struct {
	logger *slog.Logger
}

// Compile-time interface check.
var _ auth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendVerification logs a verification code.
func (n *LogNotifier) SendVerification(ctx context.Context, email, code string) error {
	n.logger.InfoContext(ctx, "verification code issued", "kind", auth.NotifyVerification, "email", email, "code", code)
	return nil
}

// SendPasswordReset logs a reset code.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, code string) error {
	n.logger.InfoContext(ctx, "password reset code issued", "kind", auth.NotifyPasswordReset, "email", email, "code", code)
	return nil
}
