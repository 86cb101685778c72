package oath

import (
	"context"
	"encoding/binary"
	"log"
	"time"
)

// lookAhead is added to every TOTP calculation timestamp. If fewer than ten
// seconds remain in the current time-step the user would likely still be
// typing the code when it expires; asking for the next step's code instead
// yields a longer remaining window, and verifiers tolerate one step of
// drift.
const lookAhead = 10 * time.Second

const steamChars = "23456789BCDFGHJKMNPQRTVWXY"

// Session is one open logical session against the credential-storage applet
// on a key. It is bound to exactly one connection and becomes unusable when
// that connection reports disconnect.
type Session struct {
	id        string
	conn      DeviceConn
	applet    Applet
	handler   *SessionHandler
	transport Transport
	now       func() time.Time
}

// Transport reports which physical link the session runs over.
func (s *Session) Transport() Transport { return s.transport }

// DeviceID identifies the key for cache and preference lookups.
func (s *Session) DeviceID() string { return s.conn.DeviceID() }

// DeviceInfo reads the key's management metadata.
func (s *Session) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	return s.conn.DeviceInfo(ctx)
}

// Ended returns a channel that delivers the disconnect error (possibly nil)
// once the underlying connection closes. The channel fires at most once.
func (s *Session) Ended() <-chan error {
	return s.handler.sessionEnded(s)
}

// End closes a contactless session, showing the message on the reader
// overlay. Wired sessions stay open until the key is unplugged.
func (s *Session) End(message string) {
	if s.transport == TransportNFC {
		s.conn.Close(message)
	}
}

// List returns the non-hidden credentials stored on the key, in device
// order. Sorting is a presentation concern.
func (s *Session) List(ctx context.Context) ([]Credential, error) {
	all, err := s.applet.List(ctx)
	if err != nil {
		return nil, err
	}
	return visible(all), nil
}

// CalculateAll batch-calculates a code for every stored credential. Entries
// the device cannot batch-calculate (touch required, HOTP) come back with a
// nil code and must be calculated individually.
func (s *Session) CalculateAll(ctx context.Context) ([]CredentialCode, error) {
	pairs, err := s.applet.CalculateAll(ctx, s.now().Add(lookAhead))
	if err != nil {
		return nil, err
	}
	out := pairs[:0]
	for _, p := range pairs {
		if !p.Credential.Hidden() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Calculate produces a single code. Steam credentials are routed through the
// Steam-specific path; the device's standard calculation cannot produce
// Steam-formatted codes.
func (s *Session) Calculate(ctx context.Context, c Credential) (Code, error) {
	if c.IsSteam() {
		return s.CalculateSteam(ctx, c)
	}
	ts := s.now()
	if c.Type == TypeTOTP {
		ts = ts.Add(lookAhead)
	}
	return s.applet.Calculate(ctx, c, ts)
}

// CalculateSteam runs the raw challenge-response calculation and maps the
// truncated result into Steam's five-character alphabet.
func (s *Session) CalculateSteam(ctx context.Context, c Credential) (Code, error) {
	ts := s.now().Add(lookAhead)
	period := int64(c.period() / time.Second)

	challenge := make([]byte, 8)
	binary.BigEndian.PutUint64(challenge, uint64(ts.Unix()/period))

	resp, err := s.applet.CalculateResponse(ctx, c.ID(), challenge)
	if err != nil {
		return Code{}, err
	}
	if len(resp) < 4 {
		log.Printf("short response calculating steam code for %s", c.Label())
		return Code{}, ErrInvalidDeviceInfo
	}

	offset := int(resp[len(resp)-1] & 0x0f)
	if offset+4 > len(resp) {
		offset = len(resp) - 4
	}
	number := binary.BigEndian.Uint32(resp[offset:offset+4]) & 0x7fffffff

	code := make([]byte, 0, 5)
	for i := 0; i < 5; i++ {
		code = append(code, steamChars[number%uint32(len(steamChars))])
		number /= uint32(len(steamChars))
	}

	start := time.Unix(ts.Unix()-ts.Unix()%DefaultPeriod, 0)
	return Code{
		Value:      string(code),
		ValidFrom:  start,
		ValidUntil: start.Add(DefaultPeriod * time.Second),
	}, nil
}

// Add writes a new credential to the key. It first lists the stored
// credentials and rejects the template without touching the device if its
// identity key already exists. The check-then-write is not atomic against a
// concurrent writer; a human is the only realistic second writer.
func (s *Session) Add(ctx context.Context, t CredentialTemplate, requiresTouch bool) error {
	existing, err := s.applet.List(ctx)
	if err != nil {
		return err
	}
	id := t.Credential().ID()
	for _, c := range existing {
		if c.ID() == id {
			return &CredentialAlreadyPresentError{Template: t}
		}
	}
	return s.applet.Put(ctx, t, requiresTouch)
}

// Delete removes a credential from the key.
func (s *Session) Delete(ctx context.Context, c Credential) error {
	return s.applet.Delete(ctx, c)
}

// Rename changes a credential's issuer and account name. Identity keys
// change with the rename, so pin bookkeeping is the caller's job.
func (s *Session) Rename(ctx context.Context, c Credential, issuer, account string) error {
	return s.applet.Rename(ctx, c, issuer, account)
}

// Unlock authenticates against a password-protected applet.
func (s *Session) Unlock(ctx context.Context, password string) error {
	key, err := s.applet.DeriveAccessKey(password)
	if err != nil {
		return err
	}
	return s.applet.Unlock(ctx, key)
}

// UnlockWithKey authenticates with an already derived access key.
func (s *Session) UnlockWithKey(ctx context.Context, key []byte) error {
	return s.applet.Unlock(ctx, key)
}

// DeriveAccessKey turns a password into the device-specific access key used
// for unlocking and for the persistent store.
func (s *Session) DeriveAccessKey(password string) ([]byte, error) {
	return s.applet.DeriveAccessKey(password)
}

// SetPassword protects the applet with a password.
func (s *Session) SetPassword(ctx context.Context, password string) error {
	return s.applet.SetPassword(ctx, password)
}

// RemovePassword removes the applet's password protection.
func (s *Session) RemovePassword(ctx context.Context) error {
	return s.applet.RemovePassword(ctx)
}

// Reset wipes the applet, deleting every credential and its password.
func (s *Session) Reset(ctx context.Context) error {
	return s.applet.Reset(ctx)
}

func visible(all []Credential) []Credential {
	out := all[:0]
	for _, c := range all {
		if !c.Hidden() {
			out = append(out, c)
		}
	}
	return out
}
