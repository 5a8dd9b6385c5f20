// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNotifyTimeout bounds a single notification attempt.
const DefaultNotifyTimeout = 5 * time.Second

// Operation names used for spans and metrics.
const (
	OpSignup       = "signup"
	OpVerifyEmail  = "verify_email"
	OpLogin        = "login"
	OpRequestReset = "request_reset"
	OpConfirmReset = "confirm_reset"
)

// Notification kinds.
const (
	NotifyVerification  = "verification"
	NotifyPasswordReset = "password_reset"
)

// dummyPasswordHash stands in for the per-service dummy hash when the
// configured hasher cannot produce one. It matches no password.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	RecordOperation(operation, outcome string)
	RecordNotificationFailure(kind string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string)   {}
func (noopRecorder) RecordNotificationFailure(string) {}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken   string
	Email         string
	WalletAddress string
}

// Service implements the account lifecycle: signup, email verification,
// login, and the password reset flow.
type Service struct {
	repo     AccountRepository
	hasher   PasswordHasher
	codes    CodeGenerator
	tokens   TokenIssuer
	notifier Notifier

	logger        *slog.Logger
	recorder      Recorder
	tracer        trace.Tracer
	now           func() time.Time
	tokenTTL      time.Duration
	codeTTL       time.Duration
	notifyTimeout time.Duration
	logCodes      bool

	// dummyHash is built once at construction so an unknown-account login
	// costs exactly one Verify, like a wrong password.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenTTL sets the access token lifetime. Defaults to DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.tokenTTL = ttl }
}

// WithCodeTTL sets how long verification and reset codes stay valid.
// Zero, the default, means codes only expire by being consumed.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) { s.codeTTL = ttl }
}

// WithNotifyTimeout bounds each notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.notifyTimeout = d }
}

// WithCodeLogFallback writes codes to the log when a notification fails.
// Only enable outside production.
func WithCodeLogFallback(enabled bool) Option {
	return func(s *Service) { s.logCodes = enabled }
}

// NewService creates a Service.
func NewService(
	repo AccountRepository,
	hasher PasswordHasher,
	codeGen CodeGenerator,
	tokens TokenIssuer,
	notifier Notifier,
	opts ...Option,
) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if codeGen == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("code generator is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	}
	if notifier == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("notifier is required")
	}

	s := &Service{
		repo:          repo,
		hasher:        hasher,
		codes:         codeGen,
		tokens:        tokens,
		notifier:      notifier,
		logger:        slog.Default(),
		recorder:      noopRecorder{},
		tracer:        otel.Tracer("github.com/holomush/authgate/internal/auth"),
		now:           time.Now,
		tokenTTL:      DefaultTokenTTL,
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = DefaultNotifyTimeout
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	s.dummyHash = newDummyHash(hasher)
	return s, nil
}

// Signup creates an unverified account and sends its verification code.
func (s *Service) Signup(ctx context.Context, email, password, walletAddress string) (err error) {
	ctx, span := s.start(ctx, OpSignup)
	defer func() { s.finish(span, OpSignup, err) }()

	email = NormalizeEmail(email)
	if err := requireFields(validation.Errors{
		"email":    validation.Validate(email, validation.Required),
		"password": validation.Validate(password, validation.Required),
	}); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	var account *Account
	err = s.repo.WithLock(ctx, email, func(ctx context.Context, store AccountStore) error {
		exists, err := store.Exists(ctx, email)
		if err != nil {
			return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "check existing account").Wrap(err)
		}
		if exists {
			return errAccountExists(email)
		}

		code, err := s.codes.Generate()
		if err != nil {
			return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "generate code").Wrap(err)
		}
		account, err = NewAccount(email, hash, walletAddress, code, s.now())
		if err != nil {
			return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "create account").Wrap(err)
		}
		if err := store.Put(ctx, account); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return errAccountExists(email)
			}
			return oops.Code("AUTH_SIGNUP_FAILED").With("operation", "store account").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // errors from the locked section are already coded
	}

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String(), "email", email)

	pending, _ := account.VerificationCode()
	s.notify(ctx, NotifyVerification, email, pending.Value, s.notifier.SendVerification)
	return nil
}

// VerifyEmail consumes the verification code and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (err error) {
	ctx, span := s.start(ctx, OpVerifyEmail)
	defer func() { s.finish(span, OpVerifyEmail, err) }()

	email = NormalizeEmail(email)
	if err := requireFields(validation.Errors{
		"email": validation.Validate(email, validation.Required),
		"code":  validation.Validate(code, validation.Required),
	}); err != nil {
		return err
	}

	err = s.repo.WithLock(ctx, email, func(ctx context.Context, store AccountStore) error {
		account, err := s.load(ctx, store, email, OpVerifyEmail)
		if err != nil {
			return err
		}
		if account.IsVerified() {
			return oops.Code(CodeAlreadyVerified).With("email", email).Errorf("email already verified")
		}

		now := s.now()
		pending, ok := account.VerificationCode()
		if !ok || !codesEqual(code, pending.Value) {
			return oops.Code(CodeInvalidCode).With("email", email).Errorf("invalid verification code")
		}
		if pending.ExpiredAt(now, s.codeTTL) {
			return oops.Code(CodeInvalidCode).With("email", email).Errorf("verification code has expired")
		}

		account.MarkVerified(now)
		if err := store.Put(ctx, account); err != nil {
			return oops.Code("AUTH_VERIFY_FAILED").With("operation", "store account").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // errors from the locked section are already coded
	}

	s.logger.InfoContext(ctx, "email verified", "email", email)
	return nil
}

// Login checks credentials and issues an access token.
//
// A missing account and a wrong password produce the same error. An
// unverified account is reported as such.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	ctx, span := s.start(ctx, OpLogin)
	defer func() { s.finish(span, OpLogin, err) }()

	email = NormalizeEmail(email)
	if err := requireFields(validation.Errors{
		"email":    validation.Validate(email, validation.Required),
		"password": validation.Validate(password, validation.Required),
	}); err != nil {
		return nil, err
	}

	account, lookupErr := s.repo.Get(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account").Wrap(lookupErr)
	}

	if lookupErr != nil {
		// Verify against a dummy hash so a missing account takes as long as
		// a wrong password.
		s.hasher.Verify(password, s.dummyHash)
		return nil, errInvalidCredentials()
	}
	if !account.IsVerified() {
		return nil, oops.Code(CodeNotVerified).With("email", email).Errorf("email not verified")
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, errInvalidCredentials()
	}

	token, err := s.tokens.Issue(Identity{Email: account.Email, WalletAddress: account.WalletAddress}, s.tokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue token").Wrap(err)
	}

	s.logger.DebugContext(ctx, "login succeeded", "email", email)
	return &LoginResult{
		AccessToken:   token,
		Email:         account.Email,
		WalletAddress: account.WalletAddress,
	}, nil
}

// RequestReset stores a fresh reset code and sends it. The result is the
// same whether or not the account exists.
func (s *Service) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := s.start(ctx, OpRequestReset)
	defer func() { s.finish(span, OpRequestReset, err) }()

	email = NormalizeEmail(email)
	if err := requireFields(validation.Errors{
		"email": validation.Validate(email, validation.Required),
	}); err != nil {
		return err
	}

	var code string
	err = s.repo.WithLock(ctx, email, func(ctx context.Context, store AccountStore) error {
		code = ""
		account, err := store.Get(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return oops.Code("RESET_REQUEST_FAILED").With("operation", "get account").Wrap(err)
		}

		generated, err := s.codes.Generate()
		if err != nil {
			return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate code").Wrap(err)
		}
		account.BeginReset(generated, s.now())
		if err := store.Put(ctx, account); err != nil {
			return oops.Code("RESET_REQUEST_FAILED").With("operation", "store account").Wrap(err)
		}
		code = generated
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // errors from the locked section are already coded
	}

	if code == "" {
		s.logger.DebugContext(ctx, "password reset requested for unknown account")
		return nil
	}

	s.logger.InfoContext(ctx, "password reset requested", "email", email)
	s.notify(ctx, NotifyPasswordReset, email, code, s.notifier.SendPasswordReset)
	return nil
}

// ConfirmReset consumes the reset code and replaces the password.
func (s *Service) ConfirmReset(ctx context.Context, email, code, newPassword string) (err error) {
	ctx, span := s.start(ctx, OpConfirmReset)
	defer func() { s.finish(span, OpConfirmReset, err) }()

	email = NormalizeEmail(email)
	if err := requireFields(validation.Errors{
		"email":       validation.Validate(email, validation.Required),
		"code":        validation.Validate(code, validation.Required),
		"newPassword": validation.Validate(newPassword, validation.Required),
	}); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	err = s.repo.WithLock(ctx, email, func(ctx context.Context, store AccountStore) error {
		account, err := s.load(ctx, store, email, OpConfirmReset)
		if err != nil {
			return err
		}

		now := s.now()
		pending, ok := account.ResetCode()
		if !ok || !codesEqual(code, pending.Value) {
			return oops.Code(CodeInvalidCode).With("email", email).Errorf("invalid reset code")
		}
		if pending.ExpiredAt(now, s.codeTTL) {
			return oops.Code(CodeInvalidCode).With("email", email).Errorf("reset code has expired")
		}

		account.CompleteReset(hash, now)
		if err := store.Put(ctx, account); err != nil {
			return oops.Code("RESET_PASSWORD_FAILED").With("operation", "store account").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // errors from the locked section are already coded
	}

	s.logger.InfoContext(ctx, "password reset completed", "email", email)
	return nil
}

// load fetches an account inside a locked section, mapping a missing
// account to the NotFound kind.
func (s *Service) load(ctx context.Context, store AccountStore, email, op string) (*Account, error) {
	account, err := store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("email", email).Errorf("account not found")
		}
		return nil, oops.Code("AUTH_STORE_FAILED").
			With("operation", op).
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// notify sends a code without letting a slow or failing notifier hold up
// the caller for longer than the notify timeout.
func (s *Service) notify(ctx context.Context, kind, email, code string, send func(context.Context, string, string) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- send(ctx, email, code) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return
	}

	s.recorder.RecordNotificationFailure(kind)
	if s.logCodes {
		s.logger.WarnContext(ctx, "notification failed, code written to log instead",
			"kind", kind,
			"email", email,
			"code", code,
			"error", err,
		)
		return
	}
	s.logger.WarnContext(ctx, "notification failed", "kind", kind, "email", email, "error", err)
}

// newDummyHash hashes a random throwaway password with hasher so the dummy
// costs the same to verify as a real hash. It falls back to a fixed argon2id
// hash if hashing fails.
func newDummyHash(hasher PasswordHasher) string {
	gen, err := NewCodeGenerator(32, "abcdefghijklmnopqrstuvwxyz0123456789")
	if err != nil {
		return dummyPasswordHash
	}
	pw, err := gen.Generate()
	if err != nil {
		return dummyPasswordHash
	}
	hash, err := hasher.Hash(pw)
	if err != nil {
		return dummyPasswordHash
	}
	return hash
}

func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	defer span.End()

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil && KindOf(err) == KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
	}
	s.recorder.RecordOperation(op, outcome)
}

func requireFields(errs validation.Errors) error {
	if err := errs.Filter(); err != nil {
		return oops.Code(CodeInvalidInput).Errorf("%s", err.Error())
	}
	return nil
}

func errAccountExists(email string) error {
	return oops.Code(CodeConflict).With("email", email).Errorf("an account with this email already exists")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}
