// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements email/password accounts for authgate.
//
// # Lifecycle
//
// An Account starts unverified, holding the code sent at signup. VerifyEmail
// consumes that code and the account becomes verified for good. Independently
// of verification, RequestReset stores a reset code which ConfirmReset
// consumes while replacing the password. Accounts should be created with
// NewAccount and changed only through their transition methods.
//
// # Services
//
// Service coordinates the operations. Its collaborators are interfaces:
//   - AccountRepository - storage with per-email locking (see the memory,
//     postgres and redis subpackages)
//   - PasswordHasher - argon2id or bcrypt
//   - CodeGenerator - random verification and reset codes
//   - TokenIssuer - signed access tokens
//   - Notifier - best-effort code delivery
//
// Errors returned by Service carry an oops code. KindOf maps the code to a
// Kind so that transports can choose a response without string matching.
package auth
