// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "user_id", "123")
}

func TestAssertPublicMessage_Matching(t *testing.T) {
	err := oops.Code("X").Public("Please try again").Errorf("internal detail")
	errutil.AssertPublicMessage(t, err, "Please try again")
}
