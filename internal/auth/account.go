// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// State is the lifecycle state of an account, derived from its verification
// and reset markers.
type State string

// Account lifecycle states.
const (
	StateUnverified   State = "unverified"
	StateVerified     State = "verified"
	StateResetPending State = "reset_pending"
)

// PendingCode is a single-use code awaiting consumption.
type PendingCode struct {
	Value    string
	IssuedAt time.Time
}

// ExpiredAt reports whether the code is older than ttl at t.
// A non-positive ttl means codes never expire.
func (c PendingCode) ExpiredAt(t time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return t.Sub(c.IssuedAt) > ttl
}

// Verification is the email-verification half of the account lifecycle.
// It is either AwaitingVerification or EmailVerified.
type Verification interface {
	verification()
}

// AwaitingVerification holds the code sent at signup.
type AwaitingVerification struct {
	Code PendingCode
}

// EmailVerified records when the address was confirmed.
type EmailVerified struct {
	At time.Time
}

func (AwaitingVerification) verification() {}
func (EmailVerified) verification()        {}

// Account is the persisted authentication record for one email address.
//
// Accounts should be created with NewAccount. The lifecycle fields are only
// mutated through the transition methods, which keep a verified account from
// ever carrying a verification code.
type Account struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string
	WalletAddress string
	Verification  Verification
	// Reset is nil unless a password reset is pending.
	Reset     *PendingCode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail lowercases and trims an address for use as an account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount creates an unverified account awaiting the given code.
func NewAccount(email, passwordHash, walletAddress, code string, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("email", email).Errorf("password hash cannot be empty")
	}
	if code == "" {
		return nil, oops.Code("ACCOUNT_INVALID").With("email", email).Errorf("verification code cannot be empty")
	}
	return &Account{
		ID:            ulid.Make(),
		Email:         email,
		PasswordHash:  passwordHash,
		WalletAddress: walletAddress,
		Verification:  AwaitingVerification{Code: PendingCode{Value: code, IssuedAt: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// State returns the lifecycle state of the account. A pending reset takes
// precedence over the verification state.
func (a *Account) State() State {
	if a.Reset != nil {
		return StateResetPending
	}
	if a.IsVerified() {
		return StateVerified
	}
	return StateUnverified
}

// IsVerified reports whether the email address has been confirmed.
func (a *Account) IsVerified() bool {
	_, ok := a.Verification.(EmailVerified)
	return ok
}

// VerificationCode returns the pending verification code, if any.
func (a *Account) VerificationCode() (PendingCode, bool) {
	awaiting, ok := a.Verification.(AwaitingVerification)
	if !ok {
		return PendingCode{}, false
	}
	return awaiting.Code, true
}

// ResetCode returns the pending reset code, if any.
func (a *Account) ResetCode() (PendingCode, bool) {
	if a.Reset == nil {
		return PendingCode{}, false
	}
	return *a.Reset, true
}

// MarkVerified consumes the verification code.
func (a *Account) MarkVerified(now time.Time) {
	a.Verification = EmailVerified{At: now}
	a.UpdatedAt = now
}

// BeginReset stores a reset code, replacing any code already pending.
func (a *Account) BeginReset(code string, now time.Time) {
	a.Reset = &PendingCode{Value: code, IssuedAt: now}
	a.UpdatedAt = now
}

// CompleteReset replaces the password hash and consumes the reset code.
func (a *Account) CompleteReset(passwordHash string, now time.Time) {
	a.PasswordHash = passwordHash
	a.Reset = nil
	a.UpdatedAt = now
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Reset != nil {
		reset := *a.Reset
		c.Reset = &reset
	}
	return &c
}
