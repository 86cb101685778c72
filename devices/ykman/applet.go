package ykman

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/oath-vault/oath-vault/oath"
)

const (
	touchMarker = "[Requires Touch]"
	hotpMarker  = "[HOTP Credential]"
)

// applet runs the oath subcommand family. ykman has no session concept, so
// each call is one process invocation carrying the password when the applet
// is protected.
type applet struct {
	conn     *Conn
	password string
	// keys maps derived access keys back to the passwords they came from;
	// ykman only accepts passwords, never raw keys.
	keys map[string]string
}

var _ oath.Applet = (*applet)(nil)

func (a *applet) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"oath"}, args...)
	if a.password != "" {
		full = append(full, "-p", a.password)
	}
	return run(ctx, a.conn.serial, full...)
}

func (a *applet) List(ctx context.Context) ([]oath.Credential, error) {
	pairs, err := a.CalculateAll(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	out := make([]oath.Credential, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Credential)
	}
	return out, nil
}

// codeLine splits ykman's two-column output: the account name, two or more
// spaces, then the code or a bracketed marker.
var codeLine = regexp.MustCompile(`^(.*?)\s{2,}(\S.*)$`)

func (a *applet) CalculateAll(ctx context.Context, timestamp time.Time) ([]oath.CredentialCode, error) {
	out, err := a.run(ctx, "accounts", "code")
	if err != nil {
		return nil, err
	}

	var pairs []oath.CredentialCode
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := codeLine.FindStringSubmatch(line)
		if m == nil {
			// Name-only line: a touch HOTP entry ykman prints no column for.
			pairs = append(pairs, oath.CredentialCode{
				Credential: parseName(strings.TrimSpace(line), oath.TypeHOTP, true),
			})
			continue
		}
		name, value := m[1], strings.TrimSpace(m[2])

		switch value {
		case touchMarker:
			pairs = append(pairs, oath.CredentialCode{
				Credential: parseName(name, oath.TypeTOTP, true),
			})
		case hotpMarker:
			pairs = append(pairs, oath.CredentialCode{
				Credential: parseName(name, oath.TypeHOTP, false),
			})
		default:
			c := parseName(name, oath.TypeTOTP, false)
			code := totpWindow(value, c, timestamp)
			pairs = append(pairs, oath.CredentialCode{Credential: c, Code: &code})
		}
	}
	return pairs, nil
}

func (a *applet) Calculate(ctx context.Context, c oath.Credential, timestamp time.Time) (oath.Code, error) {
	out, err := a.run(ctx, "accounts", "code", "--single", c.ID())
	if err != nil {
		return oath.Code{}, err
	}
	value := strings.TrimSpace(out)
	if value == "" {
		return oath.Code{}, fmt.Errorf("ykman: empty code for %s", c.Label())
	}
	if c.Type == oath.TypeHOTP {
		return oath.Code{Value: value, ValidFrom: timestamp}, nil
	}
	return totpWindow(value, c, timestamp), nil
}

// CalculateResponse needs raw challenge-response access the ykman CLI does
// not expose.
func (a *applet) CalculateResponse(ctx context.Context, credentialID string, challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: raw challenge-response is not available through ykman", oath.ErrUnsupportedTransport)
}

func (a *applet) Put(ctx context.Context, t oath.CredentialTemplate, requiresTouch bool) error {
	args := []string{"accounts", "uri", "-f"}
	if requiresTouch {
		args = append(args, "-t")
	}
	args = append(args, t.URI())
	_, err := a.run(ctx, args...)
	return err
}

func (a *applet) Delete(ctx context.Context, c oath.Credential) error {
	_, err := a.run(ctx, "accounts", "delete", "-f", c.ID())
	return err
}

func (a *applet) Rename(ctx context.Context, c oath.Credential, issuer, account string) error {
	target := account
	if issuer != "" {
		target = issuer + ":" + account
	}
	_, err := a.run(ctx, "accounts", "rename", "-f", c.ID(), target)
	return err
}

// DeriveAccessKey matches the key derivation the applet performs on-card:
// PBKDF2-SHA1 over the password with the device identity as salt, 1000
// rounds, 16 bytes.
func (a *applet) DeriveAccessKey(password string) ([]byte, error) {
	key := pbkdf2.Key([]byte(password), []byte(a.conn.DeviceID()), 1000, 16, sha1.New)
	a.keys[hex.EncodeToString(key)] = password
	return key, nil
}

// Unlock maps the access key back to a password this process has seen and
// verifies it with a probe invocation. Keys derived by an earlier process
// cannot be mapped back and are rejected, which sends the caller to the
// password prompt.
func (a *applet) Unlock(ctx context.Context, accessKey []byte) error {
	password, ok := a.keys[hex.EncodeToString(accessKey)]
	if !ok {
		return oath.ErrWrongPassword
	}
	probe := &applet{conn: a.conn, password: password, keys: a.keys}
	if _, err := probe.run(ctx, "accounts", "list"); err != nil {
		return err
	}
	a.password = password
	return nil
}

func (a *applet) SetPassword(ctx context.Context, password string) error {
	if _, err := a.run(ctx, "access", "change", "-n", password); err != nil {
		return err
	}
	a.password = password
	return nil
}

func (a *applet) RemovePassword(ctx context.Context) error {
	if _, err := a.run(ctx, "access", "change", "-c"); err != nil {
		return err
	}
	a.password = ""
	return nil
}

func (a *applet) Reset(ctx context.Context) error {
	_, err := run(ctx, a.conn.serial, "oath", "reset", "-f")
	a.password = ""
	return err
}

// parseName decodes the stored account name. Non-default periods are
// embedded as a leading "period/" segment; the rest is "issuer:account"
// with the issuer optional.
func parseName(name string, typ oath.CredentialType, requiresTouch bool) oath.Credential {
	c := oath.Credential{Type: typ, RequiresTouch: requiresTouch}
	if typ == oath.TypeTOTP {
		c.Period = oath.DefaultPeriod
	}

	if prefix, rest, found := strings.Cut(name, "/"); found {
		if period, err := strconv.ParseUint(prefix, 10, 32); err == nil && period > 0 && typ == oath.TypeTOTP {
			c.Period = uint(period)
			name = rest
		}
	}
	if issuer, account, found := strings.Cut(name, ":"); found {
		c.Issuer = issuer
		c.Account = account
	} else {
		c.Account = name
	}
	return c
}

// totpWindow attaches the validity window implied by the credential's
// period to a device-produced code.
func totpWindow(value string, c oath.Credential, timestamp time.Time) oath.Code {
	period := int64(c.Period)
	if period == 0 {
		period = oath.DefaultPeriod
	}
	start := time.Unix(timestamp.Unix()-timestamp.Unix()%period, 0)
	return oath.Code{
		Value:      value,
		ValidFrom:  start,
		ValidUntil: start.Add(time.Duration(period) * time.Second),
	}
}
