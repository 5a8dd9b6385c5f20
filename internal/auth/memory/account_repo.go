// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process AccountRepository.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// keyLock is a per-email mutex shared by every WithLock caller for that email.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// AccountRepository stores accounts in a map. Accounts are copied on the way
// in and out, so callers never share state with the repository.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*auth.Account

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*auth.Account),
		locks:    make(map[string]*keyLock),
	}
}

// Get retrieves an account by normalized email.
func (r *AccountRepository) Get(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return account.Clone(), nil
}

// Put creates or replaces an account.
func (r *AccountRepository) Put(_ context.Context, account *auth.Account) error {
	if account == nil || account.Email == "" {
		return oops.Code("ACCOUNT_PUT_FAILED").Errorf("account must have an email")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Email] = account.Clone()
	return nil
}

// Exists reports whether an account is stored under email.
func (r *AccountRepository) Exists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[email]
	return ok, nil
}

// WithLock runs fn while holding the mutex for email.
func (r *AccountRepository) WithLock(
	ctx context.Context,
	email string,
	fn func(ctx context.Context, store auth.AccountStore) error,
) error {
	lock := r.acquire(email)
	defer r.release(email, lock)

	if err := ctx.Err(); err != nil {
		return oops.Code("ACCOUNT_LOCK_FAILED").With("email", email).Wrap(err)
	}
	return fn(ctx, r)
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

func (r *AccountRepository) acquire(email string) *keyLock {
	r.locksMu.Lock()
	lock, ok := r.locks[email]
	if !ok {
		lock = &keyLock{}
		r.locks[email] = lock
	}
	lock.refs++
	r.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (r *AccountRepository) release(email string, lock *keyLock) {
	lock.mu.Unlock()

	r.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, email)
	}
	r.locksMu.Unlock()
}
