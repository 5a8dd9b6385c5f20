// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.AccountRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// querier is the subset of pgx used for reads and writes. Both pools and
// transactions satisfy it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool used by AccountRepository.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectAccount = `
	SELECT id, email, password_hash, wallet_address,
	       verified_at, verification_code, verification_code_issued_at,
	       reset_code, reset_code_issued_at,
	       created_at, updated_at
	FROM accounts
	WHERE email = $1`

const upsertAccount = `
	INSERT INTO accounts (
		id, email, password_hash, wallet_address,
		verified_at, verification_code, verification_code_issued_at,
		reset_code, reset_code_issued_at,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (email) DO UPDATE SET
		password_hash = EXCLUDED.password_hash,
		wallet_address = EXCLUDED.wallet_address,
		verified_at = EXCLUDED.verified_at,
		verification_code = EXCLUDED.verification_code,
		verification_code_issued_at = EXCLUDED.verification_code_issued_at,
		reset_code = EXCLUDED.reset_code,
		reset_code_issued_at = EXCLUDED.reset_code_issued_at,
		updated_at = EXCLUDED.updated_at
	WHERE accounts.id = EXCLUDED.id`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Get retrieves an account by normalized email.
func (r *AccountRepository) Get(ctx context.Context, email string) (*auth.Account, error) {
	return getAccount(ctx, r.pool, email)
}

// Put creates or replaces an account.
func (r *AccountRepository) Put(ctx context.Context, account *auth.Account) error {
	return putAccount(ctx, r.pool, account)
}

// Exists reports whether an account is stored under email.
func (r *AccountRepository) Exists(ctx context.Context, email string) (bool, error) {
	return accountExists(ctx, r.pool, email)
}

// WithLock runs fn inside a transaction holding a transaction-scoped
// advisory lock derived from email.
func (r *AccountRepository) WithLock(
	ctx context.Context,
	email string,
	fn func(ctx context.Context, store auth.AccountStore) error,
) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ACCOUNT_LOCK_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		// Rollback after a successful commit is a no-op.
		_ = tx.Rollback(ctx) //nolint:errcheck // error path already reported
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, email); err != nil {
		return oops.Code("ACCOUNT_LOCK_FAILED").
			With("operation", "acquire advisory lock").
			With("email", email).
			Wrap(err)
	}

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ACCOUNT_LOCK_FAILED").With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

// txStore is the AccountStore handed to WithLock callbacks.
type txStore struct {
	tx pgx.Tx
}

func (s *txStore) Get(ctx context.Context, email string) (*auth.Account, error) {
	return getAccount(ctx, s.tx, email)
}

func (s *txStore) Put(ctx context.Context, account *auth.Account) error {
	return putAccount(ctx, s.tx, account)
}

func (s *txStore) Exists(ctx context.Context, email string) (bool, error) {
	return accountExists(ctx, s.tx, email)
}

func getAccount(ctx context.Context, q querier, email string) (*auth.Account, error) {
	account, err := scanAccount(q.QueryRow(ctx, selectAccount, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

func putAccount(ctx context.Context, q querier, account *auth.Account) error {
	var verifiedAt *time.Time
	var verificationCode *string
	var verificationIssuedAt *time.Time
	switch v := account.Verification.(type) {
	case auth.EmailVerified:
		at := v.At
		verifiedAt = &at
	case auth.AwaitingVerification:
		code, issued := v.Code.Value, v.Code.IssuedAt
		verificationCode = &code
		verificationIssuedAt = &issued
	}

	var resetCode *string
	var resetIssuedAt *time.Time
	if pending, ok := account.ResetCode(); ok {
		resetCode = &pending.Value
		resetIssuedAt = &pending.IssuedAt
	}

	var wallet *string
	if account.WalletAddress != "" {
		wallet = &account.WalletAddress
	}

	tag, err := q.Exec(ctx, upsertAccount,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		wallet,
		verifiedAt,
		verificationCode,
		verificationIssuedAt,
		resetCode,
		resetIssuedAt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_EXISTS").With("email", account.Email).Wrap(auth.ErrAlreadyExists)
		}
		return oops.Code("ACCOUNT_PUT_FAILED").
			With("operation", "upsert account").
			With("email", account.Email).
			Wrap(err)
	}
	// The upsert only updates a row with the same id; a different account
	// already owning the email leaves zero rows affected.
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_EXISTS").With("email", account.Email).Wrap(auth.ErrAlreadyExists)
	}
	return nil
}

func accountExists(ctx context.Context, q querier, email string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "check account exists").
			With("email", email).
			Wrap(err)
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr                string
		account              auth.Account
		wallet               *string
		verifiedAt           *time.Time
		verificationCode     *string
		verificationIssuedAt *time.Time
		resetCode            *string
		resetIssuedAt        *time.Time
	)
	err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&wallet,
		&verifiedAt,
		&verificationCode,
		&verificationIssuedAt,
		&resetCode,
		&resetIssuedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	account.ID = id
	if wallet != nil {
		account.WalletAddress = *wallet
	}

	switch {
	case verifiedAt != nil:
		account.Verification = auth.EmailVerified{At: *verifiedAt}
	case verificationCode != nil:
		pending := auth.PendingCode{Value: *verificationCode}
		if verificationIssuedAt != nil {
			pending.IssuedAt = *verificationIssuedAt
		}
		account.Verification = auth.AwaitingVerification{Code: pending}
	default:
		account.Verification = auth.AwaitingVerification{}
	}

	if resetCode != nil {
		pending := auth.PendingCode{Value: *resetCode}
		if resetIssuedAt != nil {
			pending.IssuedAt = *resetIssuedAt
		}
		account.Reset = &pending
	}
	return &account, nil
}
