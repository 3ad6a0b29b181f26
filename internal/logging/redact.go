// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package logging

import "strings"

// MaskEmail keeps the first two characters of the local part and the domain:
// "alice@example.com" becomes "al***@example.com". Values without an "@" are
// masked entirely.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := []rune(email[:at]), email[at:]
	keep := 2
	if len(local) < keep {
		keep = len(local)
	}
	return string(local[:keep]) + "***" + domain
}
