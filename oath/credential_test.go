package oath

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCredentialID(t *testing.T) {
	tests := []struct {
		name string
		c    Credential
		want string
	}{
		{
			name: "totp with default period",
			c:    Credential{Type: TypeTOTP, Issuer: "GitHub", Account: "dev@example.com", Period: 30},
			want: "30/GitHub:dev@example.com",
		},
		{
			name: "totp with zero period defaults",
			c:    Credential{Type: TypeTOTP, Issuer: "GitHub", Account: "dev@example.com"},
			want: "30/GitHub:dev@example.com",
		},
		{
			name: "totp with custom period",
			c:    Credential{Type: TypeTOTP, Issuer: "Corp", Account: "dev", Period: 60},
			want: "60/Corp:dev",
		},
		{
			name: "hotp ignores period",
			c:    Credential{Type: TypeHOTP, Issuer: "Legacy", Account: "dev"},
			want: "Legacy:dev",
		},
		{
			name: "no issuer",
			c:    Credential{Type: TypeHOTP, Account: "dev@example.com"},
			want: "dev@example.com",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.ID(); got != tc.want {
				t.Errorf("ID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCredentialIDDistinguishesPeriods(t *testing.T) {
	a := Credential{Type: TypeTOTP, Issuer: "X", Account: "y", Period: 30}
	b := Credential{Type: TypeTOTP, Issuer: "X", Account: "y", Period: 60}
	if a.ID() == b.ID() {
		t.Errorf("credentials with different periods share ID %q", a.ID())
	}
}

func TestIsSteam(t *testing.T) {
	if !(Credential{Type: TypeTOTP, Issuer: "Steam", Account: "gamer"}).IsSteam() {
		t.Error("Steam issuer not detected")
	}
	if !(Credential{Type: TypeTOTP, Issuer: "steam", Account: "gamer"}).IsSteam() {
		t.Error("issuer match should be case-insensitive")
	}
	if (Credential{Type: TypeHOTP, Issuer: "Steam", Account: "gamer"}).IsSteam() {
		t.Error("HOTP credential can never be a Steam credential")
	}
	if (Credential{Type: TypeTOTP, Issuer: "Steamworks", Account: "gamer"}).IsSteam() {
		t.Error("issuer must match exactly")
	}
}

func TestHidden(t *testing.T) {
	if !(Credential{Account: "_hidden:internal"}).Hidden() {
		t.Error("hidden account name not detected")
	}
	if !(Credential{Issuer: "_hidden:tool", Account: "x"}).Hidden() {
		t.Error("hidden issuer not detected")
	}
	if (Credential{Issuer: "GitHub", Account: "dev"}).Hidden() {
		t.Error("ordinary credential flagged hidden")
	}
}

func TestCodeRemaining(t *testing.T) {
	code := Code{
		Value:      "123456",
		ValidFrom:  time.Unix(600, 0),
		ValidUntil: time.Unix(630, 0),
	}

	left, fraction := code.Remaining(time.Unix(615, 0))
	if left != 15*time.Second {
		t.Errorf("left = %s, want 15s", left)
	}
	if fraction != 0.5 {
		t.Errorf("fraction = %v, want 0.5", fraction)
	}

	if _, fraction := code.Remaining(time.Unix(630, 0)); fraction != 0 {
		t.Errorf("fraction at expiry = %v, want 0", fraction)
	}
	if left, _ := code.Remaining(time.Unix(700, 0)); left != 0 {
		t.Errorf("left after expiry = %s, want 0", left)
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want CredentialTemplate
	}{
		{
			name: "minimal totp",
			uri:  "otpauth://totp/Example:alice@google.com?secret=JBSWY3DPEHPK3PXP",
			want: CredentialTemplate{
				Type: TypeTOTP, Issuer: "Example", Account: "alice@google.com",
				Secret:    []byte("Hello!\xde\xad\xbe\xef"),
				Algorithm: AlgorithmSHA1, Digits: 6, Period: 30,
			},
		},
		{
			name: "issuer parameter wins over label prefix",
			uri:  "otpauth://totp/Old:alice?secret=JBSWY3DPEHPK3PXP&issuer=New",
			want: CredentialTemplate{
				Type: TypeTOTP, Issuer: "New", Account: "alice",
				Secret:    []byte("Hello!\xde\xad\xbe\xef"),
				Algorithm: AlgorithmSHA1, Digits: 6, Period: 30,
			},
		},
		{
			name: "full parameter set",
			uri:  "otpauth://totp/ACME%20Co:john?secret=JBSWY3DPEHPK3PXP&algorithm=SHA256&digits=8&period=60",
			want: CredentialTemplate{
				Type: TypeTOTP, Issuer: "ACME Co", Account: "john",
				Secret:    []byte("Hello!\xde\xad\xbe\xef"),
				Algorithm: AlgorithmSHA256, Digits: 8, Period: 60,
			},
		},
		{
			name: "hotp with counter",
			uri:  "otpauth://hotp/Legacy:sam?secret=JBSWY3DPEHPK3PXP&counter=42",
			want: CredentialTemplate{
				Type: TypeHOTP, Issuer: "Legacy", Account: "sam",
				Secret:    []byte("Hello!\xde\xad\xbe\xef"),
				Algorithm: AlgorithmSHA1, Digits: 6, Counter: 42,
			},
		},
		{
			name: "padded lowercase secret",
			uri:  "otpauth://totp/x?secret=jbswy3dpehpk3pxp====",
			want: CredentialTemplate{
				Type: TypeTOTP, Account: "x",
				Secret:    []byte("Hello!\xde\xad\xbe\xef"),
				Algorithm: AlgorithmSHA1, Digits: 6, Period: 30,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseURI(tc.uri)
			if err != nil {
				t.Fatalf("ParseURI: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("template mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseURIErrors(t *testing.T) {
	bad := []string{
		"https://totp/x?secret=JBSWY3DPEHPK3PXP",
		"otpauth://motp/x?secret=JBSWY3DPEHPK3PXP",
		"otpauth://totp/x",
		"otpauth://totp/x?secret=JBSWY3DPEHPK3PXP&digits=4",
		"otpauth://totp/x?secret=JBSWY3DPEHPK3PXP&algorithm=MD5",
		"otpauth://totp/x?secret=JBSWY3DPEHPK3PXP&period=0",
		"otpauth://totp/x?secret=notbase32!!",
	}
	for _, uri := range bad {
		if _, err := ParseURI(uri); err == nil {
			t.Errorf("ParseURI(%q) succeeded, want error", uri)
		}
	}
}

func TestTemplateURIRoundTrip(t *testing.T) {
	want := CredentialTemplate{
		Type: TypeTOTP, Issuer: "ACME Co", Account: "john@example.com",
		Secret:    []byte("Hello!\xde\xad\xbe\xef"),
		Algorithm: AlgorithmSHA256, Digits: 8, Period: 60,
	}
	got, err := ParseURI(want.URI())
	if err != nil {
		t.Fatalf("ParseURI(%q): %v", want.URI(), err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
