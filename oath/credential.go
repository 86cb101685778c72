package oath

import (
	"fmt"
	"strings"
	"time"
)

// CredentialType is the OATH credential type stored on the key.
type CredentialType int

const (
	TypeTOTP CredentialType = iota
	TypeHOTP
)

func (t CredentialType) String() string {
	if t == TypeHOTP {
		return "HOTP"
	}
	return "TOTP"
}

// DefaultPeriod is the standard TOTP time-step.
const DefaultPeriod = 30

// hiddenPrefix marks credentials that tooling stores on the key for its own
// use. They never appear in listings.
const hiddenPrefix = "_hidden:"

// Credential identifies one OTP secret stored on the key. The secret itself
// never leaves the device.
type Credential struct {
	Type          CredentialType
	Issuer        string
	Account       string
	Period        uint // seconds, TOTP only
	RequiresTouch bool
}

// ID is the credential's identity key. Two credentials are the same entity
// iff their IDs match. The format mirrors how the key itself names
// credentials: TOTP credentials are additionally qualified by their period.
func (c Credential) ID() string {
	if c.Type == TypeTOTP {
		period := c.Period
		if period == 0 {
			period = DefaultPeriod
		}
		return fmt.Sprintf("%d/%s", period, c.Label())
	}
	return c.Label()
}

// Label is the issuer-qualified account name as displayed to the user.
func (c Credential) Label() string {
	if c.Issuer == "" {
		return c.Account
	}
	return c.Issuer + ":" + c.Account
}

// IsSteam reports whether the credential uses Steam's code alphabet rather
// than standard TOTP digits.
func (c Credential) IsSteam() bool {
	return c.Type == TypeTOTP && strings.EqualFold(c.Issuer, "steam")
}

// Hidden credentials are excluded from every listing shown to the user.
func (c Credential) Hidden() bool {
	return strings.HasPrefix(c.Label(), hiddenPrefix)
}

func (c Credential) period() time.Duration {
	if c.Period == 0 {
		return DefaultPeriod * time.Second
	}
	return time.Duration(c.Period) * time.Second
}

// Code is a calculated one-time password and its validity window. Codes are
// immutable; a recalculation produces a new Code. For HOTP the window is
// advisory only.
type Code struct {
	Value      string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Remaining returns how much of the validity window is left at now, as a
// duration and as a fraction of the whole window.
func (c Code) Remaining(now time.Time) (time.Duration, float64) {
	left := c.ValidUntil.Sub(now)
	window := c.ValidUntil.Sub(c.ValidFrom)
	if left <= 0 || window <= 0 {
		return 0, 0
	}
	f := float64(left) / float64(window)
	if f > 1 {
		f = 1
	}
	return left, f
}

// CredentialCode pairs a credential with its latest calculated code, if any.
// A nil Code means the device could not batch-calculate it and an individual
// calculation is needed.
type CredentialCode struct {
	Credential Credential
	Code       *Code
}
