// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package web

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/allev1985/topten-sub005/internal/auth"
)

// fieldErrors collects one message per field.
type fieldErrors map[string]string

func (f fieldErrors) email(field, value string) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		f[field] = "Email is required"
	case !govalidator.StringLength(value, "3", "255") || !govalidator.IsEmail(value):
		f[field] = "Please enter a valid email address"
	}
}

func (f fieldErrors) required(field, value, message string) {
	if value == "" {
		f[field] = message
	}
}

// newPassword applies the password policy and reports the first failed rule.
func (f fieldErrors) newPassword(field, value string) {
	if value == "" {
		f[field] = "Password is required"
		return
	}
	if rules := auth.PasswordViolations(value); len(rules) > 0 {
		f[field] = auth.RuleMessage(rules[0])
	}
}

func (f fieldErrors) empty() bool { return len(f) == 0 }
