package domain

import "time"

// Brute-force lockout policy. Fixed by design; config can only narrow the
// window for tests, never widen representable states.
const (
	FailedLoginThreshold   = 5
	DefaultLockoutDuration = 30 * time.Minute
)

type guardKind int

const (
	guardOpen guardKind = iota
	guardLocked
)

// GuardState is the account-protection state machine: either open with a
// failed-attempt counter, or locked until an instant. The tagged
// representation keeps "locked without a deadline" and "open with a deadline"
// unrepresentable.
type GuardState struct {
	kind           guardKind
	failedAttempts int
	lockedUntil    time.Time
}

// OpenGuard returns an open state carrying the given failed-attempt count.
func OpenGuard(failedAttempts int) GuardState {
	if failedAttempts < 0 {
		failedAttempts = 0
	}
	return GuardState{kind: guardOpen, failedAttempts: failedAttempts}
}

// LockedGuard returns a locked state expiring at until.
func LockedGuard(until time.Time) GuardState {
	return GuardState{kind: guardLocked, lockedUntil: until}
}

// IsLocked reports whether the guard rejects login attempts at now.
// An expired lock no longer counts as locked.
func (g GuardState) IsLocked(now time.Time) bool {
	return g.kind == guardLocked && g.lockedUntil.After(now)
}

// RemainingLock returns how long the lock still holds at now, zero when open
// or expired.
func (g GuardState) RemainingLock(now time.Time) time.Duration {
	if !g.IsLocked(now) {
		return 0
	}
	return g.lockedUntil.Sub(now)
}

// FailedAttempts returns the consecutive failure count while open, zero while
// locked (the counter is subsumed by the lock).
func (g GuardState) FailedAttempts() int {
	if g.kind == guardLocked {
		return 0
	}
	return g.failedAttempts
}

// LockedUntil returns the lock deadline, nil while open.
func (g GuardState) LockedUntil() *time.Time {
	if g.kind != guardLocked {
		return nil
	}
	t := g.lockedUntil
	return &t
}

// Fail advances the state machine after a failed password check.
// An expired lock restarts the counter at 1; an open state increments and
// locks once the threshold is reached.
func (g GuardState) Fail(now time.Time, threshold int, lockFor time.Duration) GuardState {
	if g.kind == guardLocked {
		if g.lockedUntil.After(now) {
			// A failure should never be recorded against an active lock;
			// callers must reject before the password check. Keep the lock.
			return g
		}
		return OpenGuard(1)
	}
	attempts := g.failedAttempts + 1
	if attempts >= threshold {
		return LockedGuard(now.Add(lockFor))
	}
	return OpenGuard(attempts)
}

// Succeed resets the machine after a successful password check.
func (g GuardState) Succeed() GuardState {
	return OpenGuard(0)
}
