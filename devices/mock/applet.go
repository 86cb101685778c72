package mock

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/oath-vault/oath-vault/oath"
)

// applet implements the credential-storage applet against the in-memory
// device. Lock state is per applet session, like the real card: reopening
// the applet requires authenticating again.
type applet struct {
	conn   *Conn
	locked bool
}

var _ oath.Applet = (*applet)(nil)

func (a *applet) device() *Device { return a.conn.device }

func (a *applet) authorized() error {
	if a.locked {
		return oath.ErrAuthRequired
	}
	return nil
}

func (a *applet) List(ctx context.Context) ([]oath.Credential, error) {
	if err := a.authorized(); err != nil {
		return nil, err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]oath.Credential, 0, len(d.creds))
	for _, sc := range d.creds {
		out = append(out, d.credential(sc))
	}
	return out, nil
}

func (a *applet) CalculateAll(ctx context.Context, timestamp time.Time) ([]oath.CredentialCode, error) {
	if err := a.authorized(); err != nil {
		return nil, err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CalculateAllCalls++

	out := make([]oath.CredentialCode, 0, len(d.creds))
	for _, sc := range d.creds {
		c := d.credential(sc)
		// HOTP and touch-required entries cannot be batch-calculated.
		if c.Type == oath.TypeHOTP || sc.requiresTouch {
			out = append(out, oath.CredentialCode{Credential: c})
			continue
		}
		code := d.calculateTOTP(sc, timestamp)
		out = append(out, oath.CredentialCode{Credential: c, Code: &code})
	}
	return out, nil
}

func (a *applet) Calculate(ctx context.Context, c oath.Credential, timestamp time.Time) (oath.Code, error) {
	if err := a.authorized(); err != nil {
		return oath.Code{}, err
	}
	d := a.device()
	d.mu.Lock()
	sc := d.find(c.ID())
	if sc != nil {
		d.CalculateCalls[c.ID()]++
	}
	delay := time.Duration(0)
	if sc != nil && (sc.requiresTouch || sc.template.Type == oath.TypeHOTP) {
		delay = d.CalculateDelay
	}
	d.mu.Unlock()

	if sc == nil {
		return oath.Code{}, oath.ErrNoCredential
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return oath.Code{}, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if sc.template.Type == oath.TypeHOTP {
		return d.calculateHOTP(sc, timestamp), nil
	}
	return d.calculateTOTP(sc, timestamp), nil
}

func (a *applet) CalculateResponse(ctx context.Context, credentialID string, challenge []byte) ([]byte, error) {
	if err := a.authorized(); err != nil {
		return nil, err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ResponseErr != nil {
		return nil, d.ResponseErr
	}
	sc := d.find(credentialID)
	if sc == nil {
		return nil, oath.ErrNoCredential
	}
	d.ResponseCalls[credentialID]++
	return hmacResponse(sc.template, challenge), nil
}

func (a *applet) Put(ctx context.Context, t oath.CredentialTemplate, requiresTouch bool) error {
	if err := a.authorized(); err != nil {
		return err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PutCalls++
	id := t.Credential().ID()
	for i, sc := range d.creds {
		if d.credential(sc).ID() == id {
			// The card overwrites on identity collision.
			d.creds[i] = &storedCredential{template: t, requiresTouch: requiresTouch}
			return nil
		}
	}
	d.creds = append(d.creds, &storedCredential{template: t, requiresTouch: requiresTouch})
	return nil
}

func (a *applet) Delete(ctx context.Context, c oath.Credential) error {
	if err := a.authorized(); err != nil {
		return err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	id := c.ID()
	for i, sc := range d.creds {
		if d.credential(sc).ID() == id {
			d.creds = append(d.creds[:i], d.creds[i+1:]...)
			return nil
		}
	}
	return oath.ErrNoCredential
}

func (a *applet) Rename(ctx context.Context, c oath.Credential, issuer, account string) error {
	if err := a.authorized(); err != nil {
		return err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := d.find(c.ID())
	if sc == nil {
		return oath.ErrNoCredential
	}
	sc.template.Issuer = issuer
	sc.template.Account = account
	return nil
}

func (a *applet) DeriveAccessKey(password string) ([]byte, error) {
	return a.device().deriveAccessKey(password), nil
}

func (a *applet) Unlock(ctx context.Context, accessKey []byte) error {
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.accessKey == nil {
		a.locked = false
		return nil
	}
	if !bytes.Equal(accessKey, d.accessKey) {
		return oath.ErrWrongPassword
	}
	a.locked = false
	return nil
}

func (a *applet) SetPassword(ctx context.Context, password string) error {
	if err := a.authorized(); err != nil {
		return err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accessKey = d.deriveAccessKey(password)
	return nil
}

func (a *applet) RemovePassword(ctx context.Context) error {
	if err := a.authorized(); err != nil {
		return err
	}
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accessKey = nil
	return nil
}

func (a *applet) Reset(ctx context.Context) error {
	d := a.device()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = nil
	d.accessKey = nil
	a.locked = false
	return nil
}

func (d *Device) calculateTOTP(sc *storedCredential, timestamp time.Time) oath.Code {
	period := int64(sc.template.Period)
	if period == 0 {
		period = oath.DefaultPeriod
	}
	challenge := make([]byte, 8)
	binary.BigEndian.PutUint64(challenge, uint64(timestamp.Unix()/period))

	start := time.Unix(timestamp.Unix()-timestamp.Unix()%period, 0)
	return oath.Code{
		Value:      truncate(hmacResponse(sc.template, challenge), sc.template.Digits),
		ValidFrom:  start,
		ValidUntil: start.Add(time.Duration(period) * time.Second),
	}
}

func (d *Device) calculateHOTP(sc *storedCredential, timestamp time.Time) oath.Code {
	challenge := make([]byte, 8)
	binary.BigEndian.PutUint64(challenge, uint64(sc.template.Counter))
	sc.template.Counter++

	return oath.Code{
		Value:     truncate(hmacResponse(sc.template, challenge), sc.template.Digits),
		ValidFrom: timestamp,
	}
}
