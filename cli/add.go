package cli

import (
	"context"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prompt"
)

type AddCommandInput struct {
	URI       string
	Issuer    string
	Account   string
	Secret    string
	Type      string
	Algorithm string
	Digits    int
	Period    uint
	Counter   uint
	Touch     bool
}

func ConfigureAddCommand(app *kingpin.Application, a *OathVault) {
	input := AddCommandInput{}

	cmd := app.Command("add", "Add an account to the key, from an otpauth URI or individual flags")

	cmd.Arg("uri", "An otpauth:// URI describing the account").
		StringVar(&input.URI)

	cmd.Flag("issuer", "Issuer shown next to the account name").
		Short('i').
		StringVar(&input.Issuer)

	cmd.Flag("account", "Account name, typically an email address").
		Short('a').
		StringVar(&input.Account)

	cmd.Flag("secret", "Base32 encoded secret, prompted for when omitted").
		Short('s').
		StringVar(&input.Secret)

	cmd.Flag("type", "Credential type").
		Default("totp").
		EnumVar(&input.Type, "totp", "hotp")

	cmd.Flag("algorithm", "HMAC algorithm").
		Default("SHA1").
		EnumVar(&input.Algorithm, "SHA1", "SHA256", "SHA512")

	cmd.Flag("digits", "Number of code digits").
		Default("6").
		IntVar(&input.Digits)

	cmd.Flag("period", "TOTP time-step in seconds").
		Default("30").
		UintVar(&input.Period)

	cmd.Flag("counter", "Initial HOTP counter value").
		UintVar(&input.Counter)

	cmd.Flag("touch", "Require a touch on the key for every calculation").
		Short('t').
		BoolVar(&input.Touch)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := AddCommand(context.Background(), input, a)
		app.FatalIfError(err, "add")
		return nil
	})
}

func AddCommand(ctx context.Context, input AddCommandInput, a *OathVault) error {
	template, err := buildTemplate(input)
	if err != nil {
		return err
	}

	err = a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		return s.Add(ctx, template, input.Touch)
	})
	if err != nil {
		return err
	}

	fmt.Printf("Added %s.\n", template.Credential().Label())
	return nil
}

func buildTemplate(input AddCommandInput) (oath.CredentialTemplate, error) {
	if input.URI != "" {
		return oath.ParseURI(input.URI)
	}

	if input.Account == "" {
		return oath.CredentialTemplate{}, fmt.Errorf("either a URI or --account is required")
	}
	secret := input.Secret
	if secret == "" {
		var err error
		secret, err = prompt.TerminalSecretPrompt("Enter the base32 secret: ")
		if err != nil {
			return oath.CredentialTemplate{}, err
		}
	}
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return oath.CredentialTemplate{}, fmt.Errorf("decoding secret: %w", err)
	}

	t := oath.CredentialTemplate{
		Issuer:    input.Issuer,
		Account:   input.Account,
		Secret:    raw,
		Algorithm: oath.Algorithm(input.Algorithm),
		Digits:    input.Digits,
	}
	if input.Type == "hotp" {
		t.Type = oath.TypeHOTP
		t.Counter = uint32(input.Counter)
	} else {
		t.Type = oath.TypeTOTP
		t.Period = input.Period
	}
	return t, nil
}
