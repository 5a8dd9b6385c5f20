// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"

	"github.com/samber/oops"
)

// Code generation defaults.
const (
	DefaultCodeLength  = 6
	DefaultCodeCharset = "0123456789"
)

// CodeGenerator produces single-use verification and reset codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator draws fixed-length codes from crypto/rand.
type RandomCodeGenerator struct {
	length  int
	charset []byte
	max     *big.Int
}

// NewCodeGenerator creates a generator for codes of length characters drawn
// uniformly from charset. Zero values select the defaults.
func NewCodeGenerator(length int, charset string) (*RandomCodeGenerator, error) {
	if length == 0 {
		length = DefaultCodeLength
	}
	if charset == "" {
		charset = DefaultCodeCharset
	}
	if length < 0 {
		return nil, oops.Code("CODE_CONFIG_INVALID").With("length", length).Errorf("code length must be positive")
	}
	seen := make(map[rune]struct{}, len(charset))
	for _, r := range charset {
		if r > 0x7f {
			return nil, oops.Code("CODE_CONFIG_INVALID").Errorf("code charset must be ASCII")
		}
		if _, dup := seen[r]; dup {
			return nil, oops.Code("CODE_CONFIG_INVALID").With("char", string(r)).Errorf("code charset has duplicate characters")
		}
		seen[r] = struct{}{}
	}
	if len(charset) < 2 {
		return nil, oops.Code("CODE_CONFIG_INVALID").Errorf("code charset needs at least two characters")
	}
	return &RandomCodeGenerator{
		length:  length,
		charset: []byte(charset),
		max:     big.NewInt(int64(len(charset))),
	}, nil
}

// Generate returns a new random code.
func (g *RandomCodeGenerator) Generate() (string, error) {
	out := make([]byte, g.length)
	for i := range out {
		n, err := rand.Int(rand.Reader, g.max)
		if err != nil {
			return "", oops.Code("CODE_GENERATE_FAILED").Wrap(err)
		}
		out[i] = g.charset[n.Int64()]
	}
	return string(out), nil
}

// codesEqual compares a submitted code to the stored one in constant time.
func codesEqual(submitted, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}
