package oath

import (
	"context"
	"time"
)

// Transport is the physical link a connection runs over.
type Transport int

const (
	TransportWired Transport = iota
	TransportNFC
)

func (t Transport) String() string {
	if t == TransportNFC {
		return "nfc"
	}
	return "wired"
}

// DeviceInfo is the management metadata read from a connected key.
type DeviceInfo struct {
	Serial  string
	Version string
	// OTPEnabled reports the legacy OTP-over-USB application being active.
	OTPEnabled bool
}

// DeviceConn is one open physical link to a key. Implementations live in the
// devices tree; everything above this interface is transport-agnostic.
type DeviceConn interface {
	Transport() Transport
	// DeviceID is a stable identifier used to key caches and preferences.
	DeviceID() string
	DeviceInfo(ctx context.Context) (DeviceInfo, error)
	// OATH opens the credential-storage applet on this connection.
	OATH(ctx context.Context) (Applet, error)
	// Close ends the connection. For contactless links the message is shown
	// to the user on the reader overlay; wired links ignore it.
	Close(message string)
}

// Applet is the credential-storage applet session on one connection. The
// device performs all cryptography; calculate calls return device-produced
// codes or raw HMAC responses.
type Applet interface {
	List(ctx context.Context) ([]Credential, error)
	// CalculateAll returns a code for every stored credential the device can
	// batch-calculate. Touch-required entries come back with a nil code.
	CalculateAll(ctx context.Context, timestamp time.Time) ([]CredentialCode, error)
	Calculate(ctx context.Context, c Credential, timestamp time.Time) (Code, error)
	// CalculateResponse runs the raw challenge-response calculation for a
	// credential, returning the full HMAC output.
	CalculateResponse(ctx context.Context, credentialID string, challenge []byte) ([]byte, error)
	Put(ctx context.Context, t CredentialTemplate, requiresTouch bool) error
	Delete(ctx context.Context, c Credential) error
	Rename(ctx context.Context, c Credential, issuer, account string) error
	DeriveAccessKey(password string) ([]byte, error)
	Unlock(ctx context.Context, accessKey []byte) error
	SetPassword(ctx context.Context, password string) error
	RemovePassword(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Disconnect is emitted by a Driver when a connection goes away. Err carries
// the transport's reason, if any.
type Disconnect struct {
	Conn DeviceConn
	Err  error
}

// Driver is one transport's connection source. It replaces the SDK-style
// delegate callbacks with an explicit event stream: connects and disconnects
// arrive on channels consumed by the SessionHandler, which owns all state.
type Driver interface {
	Transport() Transport
	Connects() <-chan DeviceConn
	Disconnects() <-chan Disconnect
	// Request triggers discovery on transports that need it (contactless).
	// Wired drivers watch passively and treat this as a no-op.
	Request(ctx context.Context) error
	// Stop aborts discovery or ends the active connection, showing the
	// message where the transport supports it.
	Stop(message string)
}
