package oath

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coded failures the hardware layer reports, plus
// the local validation failures raised before any device mutation. Device
// backends wrap these so errors.Is classification works across transports.
var (
	ErrAuthRequired         = errors.New("authentication required")
	ErrWrongPassword        = errors.New("wrong password")
	ErrStaleSession         = errors.New("invalid session state")
	ErrConnectionCancelled  = errors.New("connection cancelled")
	ErrInvalidDeviceInfo    = errors.New("invalid device info")
	ErrUnsupportedTransport = errors.New("transport not supported")
	ErrInvalidURI           = errors.New("invalid otpauth URI")
	ErrPromptCancelled      = errors.New("prompt cancelled")
	ErrNoCredential         = errors.New("no such credential")
)

// CredentialAlreadyPresentError is raised by Add before touching the device
// when the template's identity key matches an existing credential.
type CredentialAlreadyPresentError struct {
	Template CredentialTemplate
}

func (e *CredentialAlreadyPresentError) Error() string {
	name := e.Template.Account
	if e.Template.Issuer != "" {
		name = e.Template.Issuer + ", " + e.Template.Account
	}
	return fmt.Sprintf("there's already an account named %s on this key", name)
}

// OTPEnabledError reports that the key exposes a legacy OTP-over-USB
// application that would hijack keyboard input, and the user has not opted
// out of the warning for this serial.
type OTPEnabledError struct {
	Serial string
}

func (e *OTPEnabledError) Error() string {
	return fmt.Sprintf("key %s has the OTP USB application enabled", e.Serial)
}

// IsAuthError reports whether err means the applet wants a password before
// it will carry out the operation.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrWrongPassword)
}
