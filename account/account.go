// Package account keeps the decorated, live-updating view of the
// credentials on a key: which code each one currently has, how long it
// remains valid, and how the list is partitioned and ordered for display.
package account

import (
	"strings"
	"sync"
	"time"

	"github.com/oath-vault/oath-vault/oath"
)

// State is what a row should render for an account right now.
type State int

const (
	// StateRequiresCalculation means no usable code exists; the user must
	// trigger a calculation (HOTP always starts here, as do touch-required
	// credentials whose code ran out).
	StateRequiresCalculation State = iota
	StateCountingDown
	StateExpired
)

// hotpGrace suppresses the refresh indicator for a short window after a
// manual HOTP calculation so the icon doesn't flicker straight back on.
const hotpGrace = 5 * time.Second

// Account pairs a credential with its live display state. Accounts are
// created fresh on every full refresh; only HOTP accounts survive a refresh
// so their active-time window isn't reset by an unrelated batch update.
type Account struct {
	Credential oath.Credential
	Pinned     bool

	mu           sync.Mutex
	code         *oath.Code
	calculatedAt time.Time
	timer        *time.Timer
}

// ID is the credential's identity key.
func (a *Account) ID() string { return a.Credential.ID() }

// Code returns the latest calculated code, or nil.
func (a *Account) Code() *oath.Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.code
}

// State derives the display state from the code's validity window and the
// supplied instant. Touch-required credentials fall back to
// RequiresCalculation instead of Expired: the device cannot push a fresh
// code without physical contact.
func (a *Account) State(now time.Time) (State, float64) {
	a.mu.Lock()
	code := a.code
	a.mu.Unlock()

	if code == nil || code.Value == "" || a.Credential.Type == oath.TypeHOTP {
		return StateRequiresCalculation, 0
	}
	_, fraction := code.Remaining(now)
	if fraction <= 0 {
		if a.Credential.RequiresTouch {
			return StateRequiresCalculation, 0
		}
		return StateExpired, 0
	}
	return StateCountingDown, fraction
}

// ShowsRefresh reports whether the refresh indicator should be visible. For
// HOTP it stays hidden during the grace window after a calculation.
func (a *Account) ShowsRefresh(now time.Time) bool {
	if a.Credential.Type != oath.TypeHOTP {
		state, _ := a.State(now)
		return state != StateCountingDown
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calculatedAt.IsZero() || now.Sub(a.calculatedAt) > hotpGrace
}

// FormattedCode renders the code for display: a placeholder when absent,
// split in halves for readability, except Steam codes which are short and
// alphanumeric already.
func (a *Account) FormattedCode() string {
	a.mu.Lock()
	code := a.code
	a.mu.Unlock()

	if code == nil || code.Value == "" {
		return "••••••"
	}
	if a.Credential.IsSteam() {
		return code.Value
	}
	half := len(code.Value) / 2
	return code.Value[:half] + " " + code.Value[half:]
}

func (a *Account) setCode(code oath.Code, now time.Time) {
	a.mu.Lock()
	a.code = &code
	a.calculatedAt = now
	a.mu.Unlock()
}

// scheduleExpiry arms a one-shot wake-up for the moment the current code
// runs out, replacing any earlier one. The callback closes over this account
// instance; once the account is superseded by a refresh the stale wake-up is
// a harmless no-op.
func (a *Account) scheduleExpiry(now time.Time, fire func(id string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.code == nil || a.Credential.Type == oath.TypeHOTP {
		return
	}
	left := a.code.ValidUntil.Sub(now)
	if left <= 0 {
		return
	}
	id := a.ID()
	a.timer = time.AfterFunc(left, func() { fire(id) })
}

func (a *Account) stopTimer() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}

// matchesFilter reports whether issuer or account name contains the already
// lowercased filter substring.
func (a *Account) matchesFilter(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Credential.Issuer), filter) ||
		strings.Contains(strings.ToLower(a.Credential.Account), filter)
}
