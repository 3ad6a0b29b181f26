// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password policy constraints.
const (
	MinPasswordLength = 12
	MaxPasswordLength = 72
)

// PasswordSymbols is the punctuation set that satisfies the symbol rule.
const PasswordSymbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// Password rule identifiers, reported in the error context under "rules".
const (
	RuleLength  = "length"
	RuleUpper   = "uppercase"
	RuleLower   = "lowercase"
	RuleDigit   = "digit"
	RuleSymbol  = "symbol"
	RuleTooLong = "max_length"
)

var ruleMessages = map[string]string{
	RuleLength:  "Password must be at least 12 characters",
	RuleTooLong: "Password must be at most 72 characters",
	RuleUpper:   "Password must contain an uppercase letter",
	RuleLower:   "Password must contain a lowercase letter",
	RuleDigit:   "Password must contain a number",
	RuleSymbol:  "Password must contain a symbol",
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword checks password against the policy. The returned error has
// code PASSWORD_POLICY and lists the failed rules in its "rules" context.
func ValidatePassword(password string) error {
	failed := PasswordViolations(password)
	if len(failed) == 0 {
		return nil
	}
	return oops.Code("PASSWORD_POLICY").
		With("rules", failed).
		Public(ruleMessages[failed[0]]).
		Errorf("password does not meet policy: %s", strings.Join(failed, ", "))
}

// PasswordViolations returns the rules password fails, in a stable order.
func PasswordViolations(password string) []string {
	var failed []string
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		failed = append(failed, RuleLength)
	}
	if n > MaxPasswordLength {
		failed = append(failed, RuleTooLong)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	if !upper {
		failed = append(failed, RuleUpper)
	}
	if !lower {
		failed = append(failed, RuleLower)
	}
	if !digit {
		failed = append(failed, RuleDigit)
	}
	if !symbol {
		failed = append(failed, RuleSymbol)
	}
	return failed
}

// RuleMessage returns the user-facing message for a password rule.
func RuleMessage(rule string) string {
	return ruleMessages[rule]
}
