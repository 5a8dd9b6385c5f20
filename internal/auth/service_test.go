// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	"github.com/holomush/authgate/internal/auth/mocks"
	"github.com/holomush/authgate/pkg/errutil"
)

// captureNotifier remembers the last code sent to each address.
type captureNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	sends        int
	err          error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{verification: map[string]string{}, reset: map[string]string{}}
}

func (n *captureNotifier) SendVerification(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[email] = code
	n.sends++
	return n.err
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[email] = code
	n.sends++
	return n.err
}

func (n *captureNotifier) verificationCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email]
}

func (n *captureNotifier) resetCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

func (n *captureNotifier) sendCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sends
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string][]string
	failures []string
}

func (r *fakeRecorder) RecordOperation(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string][]string{}
	}
	r.outcomes[op] = append(r.outcomes[op], outcome)
}

func (r *fakeRecorder) RecordNotificationFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind)
}

type serviceFixture struct {
	svc      *auth.Service
	repo     *memory.AccountRepository
	notifier *captureNotifier
	tokens   *auth.JWTIssuer
	recorder *fakeRecorder
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, opts ...auth.Option) *serviceFixture {
	t.Helper()

	codes, err := auth.NewCodeGenerator(6, "")
	require.NoError(t, err)
	tokens, err := auth.NewJWTIssuer(testSecret, "authgate")
	require.NoError(t, err)

	f := &serviceFixture{
		repo:     memory.NewAccountRepository(),
		notifier: newCaptureNotifier(),
		tokens:   tokens,
		recorder: &fakeRecorder{},
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts = append([]auth.Option{auth.WithLogger(logger), auth.WithRecorder(f.recorder)}, opts...)
	f.svc, err = auth.NewService(f.repo, auth.NewBcryptHasher(bcrypt.MinCost), codes, tokens, f.notifier, opts...)
	require.NoError(t, err)
	return f
}

// signupVerified creates a verified account and returns nothing; failures
// abort the test.
func (f *serviceFixture) signupVerified(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Signup(ctx, email, password, ""))
	normalized := auth.NormalizeEmail(email)
	require.NoError(t, f.svc.VerifyEmail(ctx, normalized, f.notifier.verificationCode(normalized)))
}

func assertKind(t *testing.T, want auth.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, auth.KindOf(err), "error: %v", err)
}

func TestNewService_NilDependencies(t *testing.T) {
	repo := mocks.NewMockAccountRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	codes := mocks.NewMockCodeGenerator(t)
	tokens := mocks.NewMockTokenIssuer(t)
	notifier := mocks.NewMockNotifier(t)

	tests := []struct {
		name        string
		repo        auth.AccountRepository
		hasher      auth.PasswordHasher
		codes       auth.CodeGenerator
		tokens      auth.TokenIssuer
		notifier    auth.Notifier
		expectError string
	}{
		{"nil repository", nil, hasher, codes, tokens, notifier, "account repository is required"},
		{"nil hasher", repo, nil, codes, tokens, notifier, "password hasher is required"},
		{"nil code generator", repo, hasher, nil, tokens, notifier, "code generator is required"},
		{"nil token issuer", repo, hasher, codes, nil, notifier, "token issuer is required"},
		{"nil notifier", repo, hasher, codes, tokens, nil, "notifier is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.repo, tt.hasher, tt.codes, tt.tokens, tt.notifier)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
		})
	}
}

func TestService_Signup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unverified account and sends code", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.svc.Signup(ctx, "  A@X.com ", "pw123", "0xwallet"))

		account, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, auth.StateUnverified, account.State())
		assert.Equal(t, "0xwallet", account.WalletAddress)
		assert.NotEqual(t, "pw123", account.PasswordHash)

		pending, ok := account.VerificationCode()
		require.True(t, ok)
		assert.Regexp(t, `^[0-9]{6}$`, pending.Value)
		assert.Equal(t, pending.Value, f.notifier.verificationCode("a@x.com"))
	})

	t.Run("missing fields are invalid input", func(t *testing.T) {
		f := newFixture(t)

		tests := []struct {
			name     string
			email    string
			password string
		}{
			{"missing email", "", "pw"},
			{"blank email", "   ", "pw"},
			{"missing password", "a@x.com", ""},
			{"missing both", "", ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.svc.Signup(ctx, tt.email, tt.password, "")
				assertKind(t, auth.KindInvalidInput, err)
			})
		}
		assert.Zero(t, f.repo.Len())
		assert.Zero(t, f.notifier.sendCount())
	})

	t.Run("duplicate email is a conflict regardless of case", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw1", ""))

		err := f.svc.Signup(ctx, "A@X.COM", "pw2", "")
		errutil.AssertErrorMessage(t, err, auth.CodeConflict, "an account with this email already exists")
		assert.Equal(t, 1, f.repo.Len())
	})

	t.Run("concurrent signups create exactly one account", func(t *testing.T) {
		f := newFixture(t)

		const n = 16
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = f.svc.Signup(ctx, "race@x.com", "pw", "")
			}()
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case auth.KindOf(err) == auth.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, conflicts)
		assert.Equal(t, 1, f.repo.Len())
	})
}

func TestService_VerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("correct code succeeds exactly once", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
		code := f.notifier.verificationCode("a@x.com")

		require.NoError(t, f.svc.VerifyEmail(ctx, "a@x.com", code))

		account, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, account.IsVerified())
		_, ok := account.VerificationCode()
		assert.False(t, ok)

		err = f.svc.VerifyEmail(ctx, "a@x.com", code)
		assertKind(t, auth.KindAlreadyVerified, err)
	})

	t.Run("wrong code leaves state unchanged", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
		code := f.notifier.verificationCode("a@x.com")
		before, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)

		for _, wrong := range []string{"000000x", code + "0", " " + code, "abcdef"} {
			err := f.svc.VerifyEmail(ctx, "a@x.com", wrong)
			assertKind(t, auth.KindInvalidCode, err)
		}

		after, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.VerifyEmail(ctx, "nobody@x.com", "123456")
		assertKind(t, auth.KindNotFound, err)
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.VerifyEmail(ctx, "a@x.com", "")
		assertKind(t, auth.KindInvalidInput, err)
	})

	t.Run("email is normalized", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
		require.NoError(t, f.svc.VerifyEmail(ctx, " A@x.COM", f.notifier.verificationCode("a@x.com")))
	})

	t.Run("concurrent verification succeeds once", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
		code := f.notifier.verificationCode("a@x.com")

		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = f.svc.VerifyEmail(ctx, "a@x.com", code)
			}()
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.Equal(t, auth.KindAlreadyVerified, auth.KindOf(err))
		}
		assert.Equal(t, 1, ok)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("before verification is not verified, never invalid credentials", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw123", ""))

		_, err := f.svc.Login(ctx, "a@x.com", "pw123")
		assertKind(t, auth.KindNotVerified, err)

		_, err = f.svc.Login(ctx, "a@x.com", "wrong")
		assertKind(t, auth.KindNotVerified, err)
	})

	t.Run("returns token whose subject is the normalized email", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "  Mixed@Case.COM", "pw123", "0xabc"))
		require.NoError(t, f.svc.VerifyEmail(ctx, "mixed@case.com", f.notifier.verificationCode("mixed@case.com")))

		result, err := f.svc.Login(ctx, "MIXED@case.com", "pw123")
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.Equal(t, "mixed@case.com", result.Email)
		assert.Equal(t, "0xabc", result.WalletAddress)

		claims, err := f.tokens.Verify(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "mixed@case.com", claims.Subject)
		assert.Equal(t, "0xabc", claims.WalletAddress)
		assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), claims.ExpiresAt.Time, 5*time.Second)
	})

	t.Run("nonexistent account and wrong password are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw123")

		_, errMissing := f.svc.Login(ctx, "nobody@x.com", "pw")
		_, errWrong := f.svc.Login(ctx, "a@x.com", "wrongpw")

		assertKind(t, auth.KindInvalidCredentials, errMissing)
		assertKind(t, auth.KindInvalidCredentials, errWrong)
		assert.Equal(t, auth.Message(errMissing), auth.Message(errWrong))
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Login(ctx, "", "pw")
		assertKind(t, auth.KindInvalidInput, err)
		_, err = f.svc.Login(ctx, "a@x.com", "")
		assertKind(t, auth.KindInvalidInput, err)
	})

	t.Run("custom token ttl", func(t *testing.T) {
		f := newFixture(t, auth.WithTokenTTL(15*time.Minute))
		f.signupVerified(t, "a@x.com", "pw")

		result, err := f.svc.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		claims, err := f.tokens.Verify(result.AccessToken)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
	})
}

func TestService_LoginUnknownAccountCostsOneVerify(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockAccountRepository(t)
	repo.On("Get", mock.Anything, "ghost@x.com").Return(nil, auth.ErrNotFound).Twice()

	hasher := mocks.NewMockPasswordHasher(t)
	hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-hash", nil).Once()
	hasher.On("Verify", "pw", "dummy-hash").Return(true).Twice()

	codes, err := auth.NewCodeGenerator(6, "")
	require.NoError(t, err)
	svc, err := auth.NewService(repo, hasher, codes, mocks.NewMockTokenIssuer(t), newCaptureNotifier(),
		auth.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	hasher.AssertNumberOfCalls(t, "Hash", 1)
	hasher.AssertNumberOfCalls(t, "Verify", 0)

	// Every miss, the first included, costs one Verify and no Hash.
	// A matching dummy verification still never logs anyone in.
	for range 2 {
		_, err = svc.Login(ctx, "ghost@x.com", "pw")
		assertKind(t, auth.KindInvalidCredentials, err)
	}
}

func TestService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("identical result whether or not the account exists", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw")

		errKnown := f.svc.RequestReset(ctx, "a@x.com")
		errUnknown := f.svc.RequestReset(ctx, "nobody@x.com")
		assert.NoError(t, errKnown)
		assert.NoError(t, errUnknown)

		assert.NotEmpty(t, f.notifier.resetCode("a@x.com"))
		assert.Empty(t, f.notifier.resetCode("nobody@x.com"))
		assert.Equal(t, 1, f.repo.Len(), "unknown email must not create an account")
	})

	t.Run("marks reset pending", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw")
		require.NoError(t, f.svc.RequestReset(ctx, "A@X.com"))

		account, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, auth.StateResetPending, account.State())
	})

	t.Run("missing email", func(t *testing.T) {
		f := newFixture(t)
		assertKind(t, auth.KindInvalidInput, f.svc.RequestReset(ctx, " "))
	})

	t.Run("second request overwrites the first code", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw")

		var first string
		// Codes are random; retry until two distinct codes are issued.
		for range 10 {
			require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
			if first == "" {
				first = f.notifier.resetCode("a@x.com")
				continue
			}
			if f.notifier.resetCode("a@x.com") != first {
				break
			}
		}
		second := f.notifier.resetCode("a@x.com")
		require.NotEqual(t, first, second)

		err := f.svc.ConfirmReset(ctx, "a@x.com", first, "newpw")
		assertKind(t, auth.KindInvalidCode, err)

		require.NoError(t, f.svc.ConfirmReset(ctx, "a@x.com", second, "newpw"))
	})
}

func TestService_ConfirmReset(t *testing.T) {
	ctx := context.Background()

	t.Run("new password works and old password fails", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw1")
		require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))

		require.NoError(t, f.svc.ConfirmReset(ctx, "a@x.com", f.notifier.resetCode("a@x.com"), "pw2"))

		result, err := f.svc.Login(ctx, "a@x.com", "pw2")
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)

		_, err = f.svc.Login(ctx, "a@x.com", "pw1")
		assertKind(t, auth.KindInvalidCredentials, err)

		account, err := f.repo.Get(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, auth.StateVerified, account.State())
	})

	t.Run("code is single use", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw1")
		require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
		code := f.notifier.resetCode("a@x.com")

		require.NoError(t, f.svc.ConfirmReset(ctx, "a@x.com", code, "pw2"))
		err := f.svc.ConfirmReset(ctx, "a@x.com", code, "pw3")
		assertKind(t, auth.KindInvalidCode, err)
	})

	t.Run("wrong code leaves password unchanged", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw1")
		require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))

		err := f.svc.ConfirmReset(ctx, "a@x.com", "not-the-code", "pw2")
		assertKind(t, auth.KindInvalidCode, err)

		_, err = f.svc.Login(ctx, "a@x.com", "pw1")
		assert.NoError(t, err)
	})

	t.Run("no pending reset", func(t *testing.T) {
		f := newFixture(t)
		f.signupVerified(t, "a@x.com", "pw1")
		err := f.svc.ConfirmReset(ctx, "a@x.com", "123456", "pw2")
		assertKind(t, auth.KindInvalidCode, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ConfirmReset(ctx, "nobody@x.com", "123456", "pw2")
		assertKind(t, auth.KindNotFound, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)
		assertKind(t, auth.KindInvalidInput, f.svc.ConfirmReset(ctx, "a@x.com", "123456", ""))
		assertKind(t, auth.KindInvalidInput, f.svc.ConfirmReset(ctx, "a@x.com", "", "pw"))
		assertKind(t, auth.KindInvalidInput, f.svc.ConfirmReset(ctx, "", "123456", "pw"))
	})

	t.Run("unverified account can reset", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw1", ""))
		require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
		require.NoError(t, f.svc.ConfirmReset(ctx, "a@x.com", f.notifier.resetCode("a@x.com"), "pw2"))

		_, err := f.svc.Login(ctx, "a@x.com", "pw2")
		assertKind(t, auth.KindNotVerified, err)
	})
}

func TestService_CodeTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	f := newFixture(t, auth.WithCodeTTL(10*time.Minute), auth.WithClock(func() time.Time { return clock }))

	require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
	code := f.notifier.verificationCode("a@x.com")

	clock = now.Add(11 * time.Minute)
	err := f.svc.VerifyEmail(ctx, "a@x.com", code)
	assertKind(t, auth.KindInvalidCode, err)
	assert.Equal(t, "verification code has expired", auth.Message(err))

	require.NoError(t, f.svc.Signup(ctx, "b@x.com", "pw", ""))
	clock = clock.Add(9 * time.Minute)
	require.NoError(t, f.svc.VerifyEmail(ctx, "b@x.com", f.notifier.verificationCode("b@x.com")))

	require.NoError(t, f.svc.RequestReset(ctx, "b@x.com"))
	clock = clock.Add(time.Hour)
	err = f.svc.ConfirmReset(ctx, "b@x.com", f.notifier.resetCode("b@x.com"), "pw2")
	assertKind(t, auth.KindInvalidCode, err)
	assert.Equal(t, "reset code has expired", auth.Message(err))
}

func TestService_NotificationFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("request still succeeds and failure is recorded", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.err = errors.New("smtp down")

		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
		require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))

		assert.Equal(t, []string{auth.NotifyVerification, auth.NotifyPasswordReset}, f.recorder.failures)
		assert.Contains(t, f.logs.String(), "notification failed")
		assert.NotContains(t, f.logs.String(), f.notifier.verificationCode("a@x.com"),
			"codes must not be logged unless the fallback is enabled")
	})

	t.Run("log fallback writes the code", func(t *testing.T) {
		f := newFixture(t, auth.WithCodeLogFallback(true))
		f.notifier.err = errors.New("smtp down")

		require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))

		assert.Contains(t, f.logs.String(), "notification failed, code written to log instead")
		assert.Contains(t, f.logs.String(), `"code":"`+f.notifier.verificationCode("a@x.com")+`"`)
	})

	t.Run("slow notifier is bounded by the timeout", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		notifier := mocks.NewMockNotifier(t)
		notifier.On("SendVerification", mock.Anything, "a@x.com", mock.AnythingOfType("string")).
			Run(func(mock.Arguments) { <-release }).
			Return(nil)

		codes, err := auth.NewCodeGenerator(6, "")
		require.NoError(t, err)
		recorder := &fakeRecorder{}
		svc, err := auth.NewService(memory.NewAccountRepository(), auth.NewBcryptHasher(bcrypt.MinCost), codes,
			mocks.NewMockTokenIssuer(t), notifier,
			auth.WithNotifyTimeout(50*time.Millisecond),
			auth.WithRecorder(recorder),
			auth.WithLogger(slog.New(slog.DiscardHandler)),
		)
		require.NoError(t, err)

		start := time.Now()
		require.NoError(t, svc.Signup(ctx, "a@x.com", "pw", ""))
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, []string{auth.NotifyVerification}, recorder.failures)
	})
}

func TestService_InternalErrors(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	newMocked := func(t *testing.T, repo auth.AccountRepository, tokens auth.TokenIssuer) *auth.Service {
		t.Helper()
		codes, err := auth.NewCodeGenerator(6, "")
		require.NoError(t, err)
		svc, err := auth.NewService(repo, auth.NewBcryptHasher(bcrypt.MinCost), codes, tokens, newCaptureNotifier(),
			auth.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)
		return svc
	}

	t.Run("lock failure", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		repo.On("WithLock", mock.Anything, "a@x.com").Return(storeErr)

		err := newMocked(t, repo, mocks.NewMockTokenIssuer(t)).Signup(ctx, "a@x.com", "pw", "")
		assertKind(t, auth.KindInternal, err)
		assert.Empty(t, auth.Message(err))
	})

	t.Run("store read failure during verify", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		repo.On("WithLock", mock.Anything, "a@x.com").Return(nil)
		repo.On("Get", mock.Anything, "a@x.com").Return(nil, storeErr)

		err := newMocked(t, repo, mocks.NewMockTokenIssuer(t)).VerifyEmail(ctx, "a@x.com", "123456")
		assertKind(t, auth.KindInternal, err)
		errutil.AssertErrorContext(t, err, "operation", auth.OpVerifyEmail)
	})

	t.Run("store read failure during login", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		repo.On("Get", mock.Anything, "a@x.com").Return(nil, storeErr)

		_, err := newMocked(t, repo, mocks.NewMockTokenIssuer(t)).Login(ctx, "a@x.com", "pw")
		assertKind(t, auth.KindInternal, err)
	})

	t.Run("store write failure during reset request", func(t *testing.T) {
		account, err := auth.NewAccount("a@x.com", "hash", "", "111111", time.Now())
		require.NoError(t, err)

		repo := mocks.NewMockAccountRepository(t)
		repo.On("WithLock", mock.Anything, "a@x.com").Return(nil)
		repo.On("Get", mock.Anything, "a@x.com").Return(account, nil)
		repo.On("Put", mock.Anything, mock.AnythingOfType("*auth.Account")).Return(storeErr)

		err = newMocked(t, repo, mocks.NewMockTokenIssuer(t)).RequestReset(ctx, "a@x.com")
		assertKind(t, auth.KindInternal, err)
		errutil.AssertErrorCode(t, err, "RESET_REQUEST_FAILED")
	})

	t.Run("token signing failure", func(t *testing.T) {
		hash, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("pw")
		require.NoError(t, err)
		account, err := auth.NewAccount("a@x.com", hash, "", "111111", time.Now())
		require.NoError(t, err)
		account.MarkVerified(time.Now())

		repo := mocks.NewMockAccountRepository(t)
		repo.On("Get", mock.Anything, "a@x.com").Return(account, nil)
		tokens := mocks.NewMockTokenIssuer(t)
		tokens.On("Issue", auth.Identity{Email: "a@x.com"}, auth.DefaultTokenTTL).Return("", storeErr)

		_, err = newMocked(t, repo, tokens).Login(ctx, "a@x.com", "pw")
		assertKind(t, auth.KindInternal, err)
	})
}

func TestService_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw", ""))
	_ = f.svc.Signup(ctx, "a@x.com", "pw", "")
	_, _ = f.svc.Login(ctx, "a@x.com", "pw")
	_ = f.svc.VerifyEmail(ctx, "a@x.com", "wrong")

	assert.Equal(t, []string{"success", "conflict"}, f.recorder.outcomes[auth.OpSignup])
	assert.Equal(t, []string{"not_verified"}, f.recorder.outcomes[auth.OpLogin])
	assert.Equal(t, []string{"invalid_code"}, f.recorder.outcomes[auth.OpVerifyEmail])
}

// The walkthrough from signup to login for a single address.
func TestService_SignupVerifyLoginScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.Signup(ctx, "a@x.com", "pw123", ""))

	account, err := f.repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, account.IsVerified())
	c1, ok := account.VerificationCode()
	require.True(t, ok)
	assert.Len(t, c1.Value, 6)

	require.NoError(t, f.svc.VerifyEmail(ctx, "a@x.com", c1.Value))
	account, err = f.repo.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, account.IsVerified())

	result, err := f.svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "a@x.com", result.Email)

	_, errNobody := f.svc.Login(ctx, "nobody@x.com", "pw")
	_, errWrong := f.svc.Login(ctx, "a@x.com", "wrongpw")
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(errNobody))
	assert.Equal(t, auth.KindOf(errNobody), auth.KindOf(errWrong))
}
