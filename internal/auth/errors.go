// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by repositories when an insert collides with
// an existing account.
var ErrAlreadyExists = errors.New("already exists")

// Kind classifies the failures a caller of Service can act on.
type Kind int

// Error kinds. KindInternal covers every failure that is not the caller's
// fault (storage, hashing, token signing).
const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindNotFound
	KindAlreadyVerified
	KindInvalidCode
	KindInvalidCredentials
	KindNotVerified
)

// Error codes attached to client-facing errors returned by Service.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeConflict           = "AUTH_ACCOUNT_EXISTS"
	CodeNotFound           = "AUTH_ACCOUNT_NOT_FOUND"
	CodeAlreadyVerified    = "AUTH_ALREADY_VERIFIED"
	CodeInvalidCode        = "AUTH_INVALID_CODE"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeNotVerified        = "AUTH_NOT_VERIFIED"
)

var kindByCode = map[string]Kind{
	CodeInvalidInput:       KindInvalidInput,
	CodeConflict:           KindConflict,
	CodeNotFound:           KindNotFound,
	CodeAlreadyVerified:    KindAlreadyVerified,
	CodeInvalidCode:        KindInvalidCode,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeNotVerified:        KindNotVerified,
}

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAlreadyVerified:
		return "already_verified"
	case KindInvalidCode:
		return "invalid_code"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotVerified:
		return "not_verified"
	default:
		return "internal"
	}
}

// KindOf classifies err. Errors without a recognised oops code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := any(oopsErr.Code()).(string)
	if kind, found := kindByCode[code]; found {
		return kind
	}
	return KindInternal
}

// Message returns the caller-safe message of a client-facing error.
// Internal errors return an empty string.
func Message(err error) string {
	if KindOf(err) == KindInternal {
		return ""
	}
	oopsErr, _ := oops.AsOops(err)
	return oopsErr.Error()
}
