// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package redirect decides whether a caller-supplied post-login target is a
// same-origin path that is safe to send the browser to.
//
// Validation rejects on ambiguity: anything that could be read as a scheme,
// a protocol-relative URL, a NUL injection or a double-encoded payload is
// replaced by a fixed default path instead of being sanitized.
package redirect

import (
	"net/url"
	"strings"
)

// DefaultPath is where Resolve sends the browser when the candidate is unsafe.
const DefaultPath = "/dashboard"

var defaultValidator = New(DefaultPath)

// Validator resolves redirect targets against a configurable fallback path.
type Validator struct {
	fallback string
}

// New returns a Validator that falls back to defaultPath. An empty or unsafe
// defaultPath is replaced by DefaultPath.
func New(defaultPath string) *Validator {
	fallback := strings.TrimSpace(defaultPath)
	if !IsValid(fallback) {
		fallback = DefaultPath
	}
	return &Validator{fallback: fallback}
}

// Default returns the fallback path.
func (v *Validator) Default() string {
	return v.fallback
}

// Resolve returns the trimmed candidate when it is valid, else the fallback.
func (v *Validator) Resolve(candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if IsValid(trimmed) {
		return trimmed
	}
	return v.fallback
}

// Resolve resolves candidate against DefaultPath.
func Resolve(candidate string) string {
	return defaultValidator.Resolve(candidate)
}

// IsValid reports whether candidate is a same-origin relative path.
func IsValid(candidate string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	if !safeShape(c) {
		return false
	}

	// Malformed escapes are a rejection, not something to skip over.
	decoded, err := url.PathUnescape(c)
	if err != nil {
		return false
	}
	if decoded == c {
		return true
	}
	if !safeShape(decoded) {
		return false
	}

	// A value that still decodes after one pass was encoded twice.
	twice, err := url.PathUnescape(decoded)
	if err != nil || twice != decoded {
		return false
	}
	return true
}

// safeShape applies the structural rules to a single (possibly decoded) form.
func safeShape(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return false
	}
	// Browsers fold "/\host" into "//host".
	if strings.HasPrefix(s, `/\`) {
		return false
	}
	if strings.ContainsRune(s, 0) || strings.Contains(s, "%00") {
		return false
	}

	rest := s[1:]
	segment := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		segment = rest[:i]
	}
	return !strings.Contains(segment, ":")
}
