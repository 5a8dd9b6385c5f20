// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authgate/internal/auth"
)

var _ = Describe("Account lifecycle over HTTP", func() {
	const (
		email    = "alice@example.com"
		password = "correct horse"
		wallet   = "0x52908400098527886E0F7030069857D2E4169EE7"
	)

	var env *flowEnv

	BeforeEach(func() {
		env = newFlowEnv()
	})

	signup := func() {
		r := env.post("/auth/signup", map[string]any{
			"email":         email,
			"password":      password,
			"walletAddress": wallet,
		})
		Expect(r.status).To(Equal(http.StatusCreated))
	}

	verify := func() {
		code := env.inbox.code(auth.NotifyVerification, email)
		Expect(code).To(HaveLen(auth.DefaultCodeLength))
		r := env.post("/auth/verify-email", map[string]any{"email": email, "code": code})
		Expect(r.status).To(Equal(http.StatusOK))
	}

	login := func(pw string) reply {
		return env.post("/auth/login", map[string]any{"email": email, "password": pw})
	}

	Describe("signup", func() {
		It("creates an unverified account and sends a code", func() {
			signup()

			account, err := env.repo.Get(context.Background(), email)
			Expect(err).NotTo(HaveOccurred())
			Expect(account.IsVerified()).To(BeFalse())
			Expect(account.WalletAddress).To(Equal(wallet))
			Expect(account.PasswordHash).NotTo(Equal(password))
			Expect(env.inbox.code(auth.NotifyVerification, email)).NotTo(BeEmpty())
		})

		It("rejects a second signup for the same address", func() {
			signup()

			r := env.post("/auth/signup", map[string]any{
				"email":    "  ALICE@example.com ",
				"password": "another",
			})
			Expect(r.status).To(Equal(http.StatusConflict))
			Expect(r.body).To(HaveKeyWithValue("error", "an account with this email already exists"))
			Expect(env.repo.Len()).To(Equal(1))
		})

		It("rejects missing fields", func() {
			r := env.post("/auth/signup", map[string]any{"email": email})
			Expect(r.status).To(Equal(http.StatusBadRequest))
			Expect(r.body["error"]).To(ContainSubstring("password"))
			Expect(env.repo.Len()).To(BeZero())
		})
	})

	Describe("email verification", func() {
		BeforeEach(signup)

		It("refuses login until the email is verified", func() {
			r := login(password)
			Expect(r.status).To(Equal(http.StatusForbidden))
			Expect(r.body).NotTo(HaveKey("accessToken"))
		})

		It("rejects a wrong code and keeps the account unverified", func() {
			r := env.post("/auth/verify-email", map[string]any{"email": email, "code": "not-it"})
			Expect(r.status).To(Equal(http.StatusBadRequest))

			account, err := env.repo.Get(context.Background(), email)
			Expect(err).NotTo(HaveOccurred())
			Expect(account.IsVerified()).To(BeFalse())
		})

		It("reports an unknown account", func() {
			r := env.post("/auth/verify-email", map[string]any{"email": "bob@example.com", "code": "123456"})
			Expect(r.status).To(Equal(http.StatusNotFound))
		})

		It("accepts the code once", func() {
			verify()

			code := env.inbox.code(auth.NotifyVerification, email)
			r := env.post("/auth/verify-email", map[string]any{"email": email, "code": code})
			Expect(r.status).To(Equal(http.StatusBadRequest))
			Expect(r.body).To(HaveKeyWithValue("error", "email already verified"))
		})
	})

	Describe("login", func() {
		BeforeEach(func() {
			signup()
			verify()
		})

		It("issues a token that /auth/me accepts", func() {
			r := login(password)
			Expect(r.status).To(Equal(http.StatusOK))
			Expect(r.body).To(HaveKeyWithValue("email", email))
			Expect(r.body).To(HaveKeyWithValue("walletAddress", wallet))

			token, ok := r.body["accessToken"].(string)
			Expect(ok).To(BeTrue())
			claims, err := env.tokens.Verify(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Subject).To(Equal(email))

			me := env.get("/auth/me", token)
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.body).To(HaveKeyWithValue("email", email))
			Expect(me.body).To(HaveKeyWithValue("walletAddress", wallet))
		})

		It("treats a wrong password and an unknown account alike", func() {
			wrong := login("incorrect")
			unknown := env.post("/auth/login", map[string]any{"email": "nobody@example.com", "password": password})

			Expect(wrong.status).To(Equal(http.StatusUnauthorized))
			Expect(unknown.status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.body).To(Equal(unknown.body))
		})

		It("rejects a tampered token", func() {
			token := login(password).body["accessToken"].(string)

			r := env.get("/auth/me", token+"x")
			Expect(r.status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			signup()
			verify()
		})

		It("replaces the password with a valid code", func() {
			r := env.post("/auth/request-reset", map[string]any{"email": email})
			Expect(r.status).To(Equal(http.StatusOK))

			code := env.inbox.code(auth.NotifyPasswordReset, email)
			Expect(code).NotTo(BeEmpty())

			r = env.post("/auth/confirm-reset", map[string]any{
				"email":       email,
				"code":        code,
				"newPassword": "battery staple",
			})
			Expect(r.status).To(Equal(http.StatusOK))

			Expect(login(password).status).To(Equal(http.StatusUnauthorized))
			Expect(login("battery staple").status).To(Equal(http.StatusOK))
		})

		It("consumes the code", func() {
			env.post("/auth/request-reset", map[string]any{"email": email})
			code := env.inbox.code(auth.NotifyPasswordReset, email)
			payload := map[string]any{"email": email, "code": code, "newPassword": "battery staple"}

			Expect(env.post("/auth/confirm-reset", payload).status).To(Equal(http.StatusOK))
			Expect(env.post("/auth/confirm-reset", payload).status).To(Equal(http.StatusBadRequest))
		})

		It("only honours the latest code", func() {
			env.post("/auth/request-reset", map[string]any{"email": email})
			first := env.inbox.code(auth.NotifyPasswordReset, email)
			env.post("/auth/request-reset", map[string]any{"email": email})
			second := env.inbox.code(auth.NotifyPasswordReset, email)

			if first != second {
				r := env.post("/auth/confirm-reset", map[string]any{
					"email": email, "code": first, "newPassword": "battery staple",
				})
				Expect(r.status).To(Equal(http.StatusBadRequest))
			}
			r := env.post("/auth/confirm-reset", map[string]any{
				"email": email, "code": second, "newPassword": "battery staple",
			})
			Expect(r.status).To(Equal(http.StatusOK))
		})

		It("answers the same for unknown addresses without sending anything", func() {
			before := env.inbox.count()

			known := env.post("/auth/request-reset", map[string]any{"email": email})
			unknown := env.post("/auth/request-reset", map[string]any{"email": "nobody@example.com"})

			Expect(unknown.status).To(Equal(known.status))
			Expect(unknown.body).To(Equal(known.body))
			Expect(env.inbox.count()).To(Equal(before + 1))
		})

		It("rejects confirmation without a pending reset", func() {
			r := env.post("/auth/confirm-reset", map[string]any{
				"email": email, "code": "123456", "newPassword": "battery staple",
			})
			Expect(r.status).To(Equal(http.StatusBadRequest))
			Expect(login(password).status).To(Equal(http.StatusOK))
		})
	})

	It("serves health without authentication", func() {
		r := env.get("/health", "")
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.body).To(HaveKeyWithValue("status", "ok"))
		Expect(r.body).To(HaveKey("uptime"))
	})
})
