// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

const msgInternal = "internal server error"

type errorResponse struct {
	Error string `json:"error"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidInput, auth.KindAlreadyVerified, auth.KindInvalidCode:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindInvalidCredentials:
		return http.StatusUnauthorized
	case auth.KindNotVerified:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorWriter renders service errors. Internal errors are logged and
// replaced with a generic message.
type errorWriter struct {
	logger *slog.Logger
}

func (w *errorWriter) write(c *gin.Context, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		errutil.LogErrorContext(c.Request.Context(), w.logger, "request failed", err,
			"route", c.FullPath(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: msgInternal})
		return
	}
	c.AbortWithStatusJSON(StatusOf(kind), errorResponse{Error: auth.Message(err)})
}
