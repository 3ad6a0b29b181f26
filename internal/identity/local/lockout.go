// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import "time"

// Lockout configuration.
const (
	// LockoutDuration is how long an account stays locked.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold = 7

	maxBackoff = 32 * time.Second
)

// LockoutState describes the throttling applied after failed sign-ins.
type LockoutState struct {
	// Delay is the suggested wait before the next attempt.
	Delay            time.Duration
	IsLockedOut      bool
	LockoutRemaining time.Duration
}

// CheckFailures evaluates failures and lockedUntil at now.
func CheckFailures(failures int, lockedUntil *time.Time, now time.Time) LockoutState {
	var state LockoutState

	if IsLockedOut(lockedUntil, now) {
		state.IsLockedOut = true
		state.LockoutRemaining = lockedUntil.Sub(now)
		return state
	}

	// 2^(failures-1) seconds, capped
	if failures > 0 && failures < LockoutThreshold {
		state.Delay = min(time.Duration(1<<(failures-1))*time.Second, maxBackoff)
	}

	if failures >= LockoutThreshold {
		state.IsLockedOut = true
		state.LockoutRemaining = LockoutDuration
	}

	return state
}

// IsLockedOut returns true if lockedUntil is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// ComputeLockoutTime returns the lockout deadline for failures, or nil below
// the threshold.
func ComputeLockoutTime(failures int, now time.Time) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	until := now.Add(LockoutDuration)
	return &until
}
