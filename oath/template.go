package oath

import (
	"encoding/base32"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Algorithm is the HMAC algorithm a credential was provisioned with. The
// device performs the actual HMAC; we only carry the name through.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

// CredentialTemplate describes a credential to be written to the key.
type CredentialTemplate struct {
	Type      CredentialType
	Issuer    string
	Account   string
	Secret    []byte
	Algorithm Algorithm
	Digits    int
	Period    uint
	Counter   uint32
}

// Credential returns the credential the template would create, for identity
// key comparison against already stored credentials.
func (t CredentialTemplate) Credential() Credential {
	return Credential{
		Type:    t.Type,
		Issuer:  t.Issuer,
		Account: t.Account,
		Period:  t.Period,
	}
}

// URI renders the template in Key URI Format
// (otpauth://TYPE/LABEL?PARAMETERS).
func (t CredentialTemplate) URI() string {
	v := url.Values{}
	v.Set("secret", base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(t.Secret))
	if t.Issuer != "" {
		v.Set("issuer", t.Issuer)
	}
	if t.Algorithm != "" && t.Algorithm != AlgorithmSHA1 {
		v.Set("algorithm", string(t.Algorithm))
	}
	if t.Digits != 0 && t.Digits != 6 {
		v.Set("digits", strconv.Itoa(t.Digits))
	}
	if t.Type == TypeTOTP && t.Period != 0 && t.Period != DefaultPeriod {
		v.Set("period", strconv.FormatUint(uint64(t.Period), 10))
	}
	if t.Type == TypeHOTP {
		v.Set("counter", strconv.FormatUint(uint64(t.Counter), 10))
	}
	label := url.PathEscape(t.Account)
	if t.Issuer != "" {
		label = url.PathEscape(t.Issuer) + ":" + label
	}
	typ := "totp"
	if t.Type == TypeHOTP {
		typ = "hotp"
	}
	return fmt.Sprintf("otpauth://%s/%s?%s", typ, label, v.Encode())
}

// ParseURI parses an otpauth:// URI into a template.
func ParseURI(raw string) (CredentialTemplate, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return CredentialTemplate{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "otpauth" {
		return CredentialTemplate{}, fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}

	t := CredentialTemplate{Algorithm: AlgorithmSHA1, Digits: 6, Period: DefaultPeriod}
	switch strings.ToLower(u.Host) {
	case "totp":
		t.Type = TypeTOTP
	case "hotp":
		t.Type = TypeHOTP
		t.Period = 0
	default:
		return CredentialTemplate{}, fmt.Errorf("%w: type %q", ErrInvalidURI, u.Host)
	}

	label := strings.TrimPrefix(u.Path, "/")
	if issuer, account, found := strings.Cut(label, ":"); found {
		t.Issuer = issuer
		t.Account = strings.TrimSpace(account)
	} else {
		t.Account = label
	}

	q := u.Query()
	if issuer := q.Get("issuer"); issuer != "" {
		t.Issuer = issuer
	}
	secret := strings.ToUpper(strings.ReplaceAll(q.Get("secret"), " ", ""))
	if secret == "" {
		return CredentialTemplate{}, fmt.Errorf("%w: missing secret", ErrInvalidURI)
	}
	t.Secret, err = base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return CredentialTemplate{}, fmt.Errorf("%w: bad secret: %v", ErrInvalidURI, err)
	}
	if algorithm := q.Get("algorithm"); algorithm != "" {
		switch Algorithm(strings.ToUpper(algorithm)) {
		case AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512:
			t.Algorithm = Algorithm(strings.ToUpper(algorithm))
		default:
			return CredentialTemplate{}, fmt.Errorf("%w: algorithm %q", ErrInvalidURI, algorithm)
		}
	}
	if digits := q.Get("digits"); digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 6 || n > 8 {
			return CredentialTemplate{}, fmt.Errorf("%w: digits %q", ErrInvalidURI, digits)
		}
		t.Digits = n
	}
	if period := q.Get("period"); period != "" && t.Type == TypeTOTP {
		n, err := strconv.ParseUint(period, 10, 32)
		if err != nil || n == 0 {
			return CredentialTemplate{}, fmt.Errorf("%w: period %q", ErrInvalidURI, period)
		}
		t.Period = uint(n)
	}
	if counter := q.Get("counter"); counter != "" && t.Type == TypeHOTP {
		n, err := strconv.ParseUint(counter, 10, 32)
		if err != nil {
			return CredentialTemplate{}, fmt.Errorf("%w: counter %q", ErrInvalidURI, counter)
		}
		t.Counter = uint32(n)
	}
	return t, nil
}
