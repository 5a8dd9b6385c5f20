// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
)

// AuthService is the account lifecycle the API exposes.
type AuthService interface {
	Signup(ctx context.Context, email, password, walletAddress string) error
	VerifyEmail(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, email, code, newPassword string) error
}

// Compile-time interface check.
var _ AuthService = (*auth.Service)(nil)

// Response messages.
const (
	msgSignedUp      = "Account created. Check your email for a verification code."
	msgVerified      = "Email verified. You can now log in."
	msgResetSent     = "If an account exists for that email, a reset code has been sent."
	msgResetComplete = "Password has been reset. You can now log in."
)

type signupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"walletAddress"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type confirmResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginResponse struct {
	AccessToken   string  `json:"accessToken"`
	Email         string  `json:"email"`
	WalletAddress *string `json:"walletAddress"`
}

type meResponse struct {
	Email         string    `json:"email"`
	WalletAddress *string   `json:"walletAddress"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

// handlers binds the routes to the auth service.
type handlers struct {
	svc     AuthService
	errs    *errorWriter
	started time.Time
	now     func() time.Time
}

func (h *handlers) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Signup(c.Request.Context(), req.Email, req.Password, req.WalletAddress); err != nil {
		h.errs.write(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageResponse{Message: msgSignedUp})
}

func (h *handlers) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		h.errs.write(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgVerified})
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.write(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		AccessToken:   result.AccessToken,
		Email:         result.Email,
		WalletAddress: optional(result.WalletAddress),
	})
}

func (h *handlers) requestReset(c *gin.Context) {
	var req requestResetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.errs.write(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgResetSent})
}

func (h *handlers) confirmReset(c *gin.Context) {
	var req confirmResetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.ConfirmReset(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.errs.write(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgResetComplete})
}

func (h *handlers) me(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	resp := meResponse{
		Email:         claims.Subject,
		WalletAddress: optional(claims.WalletAddress),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) health(c *gin.Context) {
	now := h.now()
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}

// bindJSON decodes the request body, answering 400 when it is malformed.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
