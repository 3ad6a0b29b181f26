// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package gotrue

import (
	"strings"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// Classifier extends identity.CodeClassifier with message matching for older
// GoTrue releases that send no error_code.
type Classifier struct {
	identity.CodeClassifier
}

// IsEmailUnconfirmed implements identity.Classifier.
func (c Classifier) IsEmailUnconfirmed(err error) bool {
	if c.CodeClassifier.IsEmailUnconfirmed(err) {
		return true
	}
	return uncodedMessageContains(err, "email not confirmed")
}

// IsExpiredToken implements identity.Classifier.
func (c Classifier) IsExpiredToken(err error) bool {
	if c.CodeClassifier.IsExpiredToken(err) {
		return true
	}
	return uncodedMessageContains(err, "has expired")
}

func uncodedMessageContains(err error, needle string) bool {
	perr, ok := identity.AsError(err)
	if !ok || perr.Code != "" {
		return false
	}
	return strings.Contains(strings.ToLower(perr.Message), needle)
}

var _ identity.Classifier = Classifier{}
