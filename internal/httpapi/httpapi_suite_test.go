// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	"github.com/holomush/authgate/internal/httpapi"
)

func TestHTTPAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth API Flow Suite")
}

const testSecret = "flow-suite-signing-secret"

// inbox captures the codes the service sends, keyed by kind and address.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func newInbox() *inbox {
	return &inbox{codes: make(map[string]string)}
}

func (i *inbox) SendVerification(_ context.Context, email, code string) error {
	i.store(auth.NotifyVerification, email, code)
	return nil
}

func (i *inbox) SendPasswordReset(_ context.Context, email, code string) error {
	i.store(auth.NotifyPasswordReset, email, code)
	return nil
}

func (i *inbox) store(kind, email, code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[kind+"/"+email] = code
	i.sent++
}

func (i *inbox) code(kind, email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[kind+"/"+email]
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sent
}

// flowEnv is a complete API over the in-memory store.
type flowEnv struct {
	handler http.Handler
	repo    *memory.AccountRepository
	inbox   *inbox
	tokens  *auth.JWTIssuer
}

func newFlowEnv() *flowEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewAccountRepository()
	mail := newInbox()

	tokens, err := auth.NewJWTIssuer(testSecret, "authgate-test")
	Expect(err).NotTo(HaveOccurred())
	codes, err := auth.NewCodeGenerator(auth.DefaultCodeLength, auth.DefaultCodeCharset)
	Expect(err).NotTo(HaveOccurred())

	svc, err := auth.NewService(repo, auth.NewBcryptHasher(bcrypt.MinCost), codes, tokens, mail,
		auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	srv, err := httpapi.NewServer(httpapi.Config{}, svc, tokens, httpapi.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	return &flowEnv{handler: srv.Handler(), repo: repo, inbox: mail, tokens: tokens}
}

type reply struct {
	status int
	body   map[string]any
}

func (e *flowEnv) post(path string, payload map[string]any) reply {
	raw, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return e.serve(req)
}

func (e *flowEnv) get(path, token string) reply {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *flowEnv) serve(req *http.Request) reply {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	out := reply{status: rec.Code}
	Expect(json.Unmarshal(rec.Body.Bytes(), &out.body)).To(Succeed(), "body: %s", rec.Body.String())
	return out
}
