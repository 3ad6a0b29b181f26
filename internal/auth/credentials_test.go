// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/pkg/errutil"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		rules    []string
	}{
		{"meets policy", "Correct-Horse-9", nil},
		{"unicode letters count", "Pässwörter-123", nil},
		{"too short", "Ab1!", []string{auth.RuleLength}},
		{"missing upper", "lowercase-only-1", []string{auth.RuleUpper}},
		{"missing lower", "UPPERCASE-ONLY-1", []string{auth.RuleLower}},
		{"missing digit", "No-Digits-Here!", []string{auth.RuleDigit}},
		{"missing symbol", "NoSymbolsHere12", []string{auth.RuleSymbol}},
		{"empty", "", []string{auth.RuleLength, auth.RuleUpper, auth.RuleLower, auth.RuleDigit, auth.RuleSymbol}},
		{"too long", "Aa1!" + strings.Repeat("x", 69), []string{auth.RuleTooLong}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rules, auth.PasswordViolations(tt.password))

			err := auth.ValidatePassword(tt.password)
			if tt.rules == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PASSWORD_POLICY")
			errutil.AssertErrorContext(t, err, "rules", tt.rules)
			errutil.AssertPublicMessage(t, err, auth.RuleMessage(tt.rules[0]))
		})
	}
}

func TestValidatePassword_BoundaryLengths(t *testing.T) {
	base := "Aa1!"
	assert.NoError(t, auth.ValidatePassword(base+strings.Repeat("b", auth.MinPasswordLength-len(base))))
	assert.Error(t, auth.ValidatePassword(base+strings.Repeat("b", auth.MinPasswordLength-len(base)-1)))
	assert.NoError(t, auth.ValidatePassword(base+strings.Repeat("b", auth.MaxPasswordLength-len(base))))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", auth.NormalizeEmail("  User@Example.COM\t"))
	assert.Empty(t, auth.NormalizeEmail("   "))
}
