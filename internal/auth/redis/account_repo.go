// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements auth.AccountRepository on Redis, storing each
// account as a JSON document under a per-email key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/authgate/internal/auth"
)

// DefaultPrefix namespaces account keys.
const DefaultPrefix = "authgate:account:"

// Default optimistic-lock retry policy. Conflicting transactions back off
// exponentially with jitter until DefaultMaxRetryWait has passed.
const (
	DefaultRetryDelay    = 2 * time.Millisecond
	DefaultMaxRetryDelay = 50 * time.Millisecond
	DefaultMaxRetryWait  = 2 * time.Second
)

// retryJitterPercent spreads contenders apart.
const retryJitterPercent = 50

// record is the stored JSON form of an account.
type record struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	PasswordHash             string     `json:"password_hash"`
	WalletAddress            string     `json:"wallet_address,omitempty"`
	VerifiedAt               *time.Time `json:"verified_at,omitempty"`
	VerificationCode         string     `json:"verification_code,omitempty"`
	VerificationCodeIssuedAt *time.Time `json:"verification_code_issued_at,omitempty"`
	ResetCode                string     `json:"reset_code,omitempty"`
	ResetCodeIssuedAt        *time.Time `json:"reset_code_issued_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// AccountRepository implements auth.AccountRepository using Redis.
type AccountRepository struct {
	client     goredis.UniversalClient
	prefix     string
	// maxRetries caps attempts when non-zero; the wait bound always applies.
	maxRetries   uint64
	retryDelay   time.Duration
	maxRetryWait time.Duration
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)

// Option configures an AccountRepository.
type Option func(*AccountRepository)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *AccountRepository) { r.prefix = prefix }
}

// WithRetry limits how often a conflicting WithLock transaction is retried
// and sets the first backoff delay.
func WithRetry(maxRetries uint64, delay time.Duration) Option {
	return func(r *AccountRepository) {
		r.maxRetries = maxRetries
		r.retryDelay = delay
	}
}

// WithMaxRetryWait bounds the total time WithLock spends retrying.
func WithMaxRetryWait(d time.Duration) Option {
	return func(r *AccountRepository) { r.maxRetryWait = d }
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(client goredis.UniversalClient, opts ...Option) *AccountRepository {
	r := &AccountRepository{
		client:       client,
		prefix:       DefaultPrefix,
		retryDelay:   DefaultRetryDelay,
		maxRetryWait: DefaultMaxRetryWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryDelay <= 0 {
		r.retryDelay = DefaultRetryDelay
	}
	if r.maxRetryWait <= 0 {
		r.maxRetryWait = DefaultMaxRetryWait
	}
	return r
}

// backoff builds a fresh policy per WithLock call; go-retry backoffs are
// stateful.
func (r *AccountRepository) backoff() retry.Backoff {
	b := retry.NewExponential(r.retryDelay)
	b = retry.WithCappedDuration(DefaultMaxRetryDelay, b)
	b = retry.WithJitterPercent(retryJitterPercent, b)
	if r.maxRetries > 0 {
		b = retry.WithMaxRetries(r.maxRetries, b)
	}
	return retry.WithMaxDuration(r.maxRetryWait, b)
}

func (r *AccountRepository) key(email string) string {
	return r.prefix + email
}

// Get retrieves an account by normalized email.
func (r *AccountRepository) Get(ctx context.Context, email string) (*auth.Account, error) {
	return getAccount(ctx, r.client, r.key(email), email)
}

// Put creates or replaces an account.
func (r *AccountRepository) Put(ctx context.Context, account *auth.Account) error {
	data, err := encode(account)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(account.Email), data, 0).Err(); err != nil {
		return oops.Code("ACCOUNT_PUT_FAILED").With("email", account.Email).Wrap(err)
	}
	return nil
}

// Exists reports whether an account is stored under email.
func (r *AccountRepository) Exists(ctx context.Context, email string) (bool, error) {
	return accountExists(ctx, r.client, r.key(email), email)
}

// WithLock runs fn as an optimistic transaction on the account key. Writes
// made through the store are buffered and committed with MULTI/EXEC only if
// the key was not modified since fn started; otherwise fn is run again.
func (r *AccountRepository) WithLock(
	ctx context.Context,
	email string,
	fn func(ctx context.Context, store auth.AccountStore) error,
) error {
	key := r.key(email)
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
			store := &txStore{tx: tx, repo: r}
			if err := fn(ctx, store); err != nil {
				return err
			}
			if len(store.writes) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for k, data := range store.writes {
					pipe.Set(ctx, k, data, 0)
				}
				return nil
			})
			return err //nolint:wrapcheck // classified below
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return oops.Code("ACCOUNT_LOCK_CONTENDED").
			With("email", email).
			With("max_wait", r.maxRetryWait).
			Wrap(err)
	}
	return err //nolint:wrapcheck // callback errors are returned unchanged
}

// txStore reads through the watched connection and buffers writes until
// the transaction commits.
type txStore struct {
	tx     *goredis.Tx
	repo   *AccountRepository
	writes map[string][]byte
}

func (s *txStore) Get(ctx context.Context, email string) (*auth.Account, error) {
	key := s.repo.key(email)
	if data, ok := s.writes[key]; ok {
		return decode(data)
	}
	return getAccount(ctx, s.tx, key, email)
}

func (s *txStore) Put(_ context.Context, account *auth.Account) error {
	data, err := encode(account)
	if err != nil {
		return err
	}
	if s.writes == nil {
		s.writes = make(map[string][]byte)
	}
	s.writes[s.repo.key(account.Email)] = data
	return nil
}

func (s *txStore) Exists(ctx context.Context, email string) (bool, error) {
	key := s.repo.key(email)
	if _, ok := s.writes[key]; ok {
		return true, nil
	}
	return accountExists(ctx, s.tx, key, email)
}

// reader is satisfied by both clients and watched transactions.
type reader interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
}

func getAccount(ctx context.Context, c reader, key, email string) (*auth.Account, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("email", email).Wrap(err)
	}
	return decode(data)
}

func accountExists(ctx context.Context, c reader, key, email string) (bool, error) {
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").With("email", email).Wrap(err)
	}
	return n > 0, nil
}

func encode(account *auth.Account) ([]byte, error) {
	rec := record{
		ID:            account.ID.String(),
		Email:         account.Email,
		PasswordHash:  account.PasswordHash,
		WalletAddress: account.WalletAddress,
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
	switch v := account.Verification.(type) {
	case auth.EmailVerified:
		at := v.At
		rec.VerifiedAt = &at
	case auth.AwaitingVerification:
		issued := v.Code.IssuedAt
		rec.VerificationCode = v.Code.Value
		rec.VerificationCodeIssuedAt = &issued
	}
	if pending, ok := account.ResetCode(); ok {
		rec.ResetCode = pending.Value
		rec.ResetCodeIssuedAt = &pending.IssuedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, oops.Code("ACCOUNT_ENCODE_FAILED").With("email", account.Email).Wrap(err)
	}
	return data, nil
}

func decode(data []byte) (*auth.Account, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("ACCOUNT_DECODE_FAILED").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_DECODE_FAILED").With("id", rec.ID).Wrap(err)
	}

	account := &auth.Account{
		ID:            id,
		Email:         rec.Email,
		PasswordHash:  rec.PasswordHash,
		WalletAddress: rec.WalletAddress,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.VerifiedAt != nil {
		account.Verification = auth.EmailVerified{At: *rec.VerifiedAt}
	} else {
		pending := auth.PendingCode{Value: rec.VerificationCode}
		if rec.VerificationCodeIssuedAt != nil {
			pending.IssuedAt = *rec.VerificationCodeIssuedAt
		}
		account.Verification = auth.AwaitingVerification{Code: pending}
	}
	if rec.ResetCode != "" {
		pending := auth.PendingCode{Value: rec.ResetCode}
		if rec.ResetCodeIssuedAt != nil {
			pending.IssuedAt = *rec.ResetCodeIssuedAt
		}
		account.Reset = &pending
	}
	return account, nil
}
