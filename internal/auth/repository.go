// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// AccountStore reads and writes accounts keyed by normalized email.
type AccountStore interface {
	// Get retrieves an account. Returns ErrNotFound if none exists.
	Get(ctx context.Context, email string) (*Account, error)

	// Put creates or replaces the account stored under account.Email.
	Put(ctx context.Context, account *Account) error

	// Exists reports whether an account is stored under email.
	Exists(ctx context.Context, email string) (bool, error)
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	AccountStore

	// WithLock runs fn with exclusive access to the account keyed by email.
	// Reads and writes made through the store passed to fn are not
	// interleaved with those of any other WithLock call for the same email.
	// Implementations may run fn more than once, so fn must not have side
	// effects outside the store.
	WithLock(ctx context.Context, email string, fn func(ctx context.Context, store AccountStore) error) error
}
