// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// Notifier delivers codes to an email address. Delivery is best-effort:
// Service never fails a request because a notification failed.
type Notifier interface {
	SendVerification(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, code string) error
}
