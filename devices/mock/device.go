// Package mock provides an in-memory key for tests. It stores credential
// secrets and performs the HMAC calculations a real device would, so tests
// exercise the full calculation path without hardware.
package mock

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/oath-vault/oath-vault/oath"
)

type storedCredential struct {
	template      oath.CredentialTemplate
	requiresTouch bool
}

// Device is one fake key. Plug it into a Driver to connect to it. The zero
// value is usable; set Serial for a recognizable identity.
type Device struct {
	Serial     string
	Version    string
	OTPEnabled bool

	// InfoErr, if set, is returned from every DeviceInfo call.
	InfoErr error
	// ResponseErr, if set, fails every challenge-response calculation, as a
	// backend without raw challenge-response access does.
	ResponseErr error
	// CalculateDelay is slept before answering touch-required calculations,
	// simulating a key waiting for its button.
	CalculateDelay time.Duration

	mu        sync.Mutex
	accessKey []byte
	creds     []*storedCredential

	// Call counters for asserting which calculation path ran.
	CalculateAllCalls int
	CalculateCalls    map[string]int
	ResponseCalls     map[string]int
	PutCalls          int
}

func NewDevice(serial string) *Device {
	return &Device{
		Serial:         serial,
		Version:        "5.7.1",
		CalculateCalls: map[string]int{},
		ResponseCalls:  map[string]int{},
	}
}

// AddCredential stores a credential directly, bypassing the applet. Handy
// for seeding test fixtures.
func (d *Device) AddCredential(t oath.CredentialTemplate, requiresTouch bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, &storedCredential{template: t, requiresTouch: requiresTouch})
}

// SetPassword protects the device directly, bypassing the applet.
func (d *Device) SetPassword(password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accessKey = d.deriveAccessKey(password)
}

func (d *Device) deriveAccessKey(password string) []byte {
	return pbkdf2.Key([]byte(password), []byte(d.Serial), 1000, 16, sha1.New)
}

func (d *Device) credential(sc *storedCredential) oath.Credential {
	t := sc.template
	return oath.Credential{
		Type:          t.Type,
		Issuer:        t.Issuer,
		Account:       t.Account,
		Period:        t.Period,
		RequiresTouch: sc.requiresTouch,
	}
}

func (d *Device) find(id string) *storedCredential {
	for _, sc := range d.creds {
		if d.credential(sc).ID() == id {
			return sc
		}
	}
	return nil
}

func hashFor(a oath.Algorithm) func() hash.Hash {
	switch a {
	case oath.AlgorithmSHA256:
		return sha256.New
	case oath.AlgorithmSHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

// hmacResponse is the full HMAC over the 8-byte challenge, as a real device
// returns from its challenge-response calculation.
func hmacResponse(t oath.CredentialTemplate, challenge []byte) []byte {
	mac := hmac.New(hashFor(t.Algorithm), t.Secret)
	mac.Write(challenge)
	return mac.Sum(nil)
}

// truncate applies RFC 4226 dynamic truncation and decimal formatting.
func truncate(resp []byte, digits int) string {
	if digits == 0 {
		digits = 6
	}
	offset := resp[len(resp)-1] & 0x0f
	number := (uint32(resp[offset])&0x7f)<<24 |
		uint32(resp[offset+1])<<16 |
		uint32(resp[offset+2])<<8 |
		uint32(resp[offset+3])

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	number %= mod

	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = byte('0' + number%10)
		number /= 10
	}
	return string(out)
}
