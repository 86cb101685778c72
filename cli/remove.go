package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prompt"
)

type RemoveCommandInput struct {
	Query string
	Force bool
}

func ConfigureRemoveCommand(app *kingpin.Application, a *OathVault) {
	input := RemoveCommandInput{}

	cmd := app.Command("remove", "Remove an account from the key")
	cmd.Alias("rm")

	cmd.Arg("account", "Account to remove, by name or unique substring").
		Required().
		StringVar(&input.Query)

	cmd.Flag("force", "Remove without a confirmation prompt").
		Short('f').
		BoolVar(&input.Force)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := RemoveCommand(context.Background(), input, a)
		app.FatalIfError(err, "remove")
		return nil
	})
}

func RemoveCommand(ctx context.Context, input RemoveCommandInput, a *OathVault) error {
	return a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		c, err := findCredential(ctx, s, input.Query)
		if err != nil {
			return err
		}

		if !input.Force {
			r, err := prompt.TerminalPrompt(fmt.Sprintf("Delete account %q? (y|N) ", c.Label()))
			if err != nil {
				return err
			}
			if !strings.EqualFold(r, "y") && !strings.EqualFold(r, "yes") {
				return nil
			}
		}

		if err := s.Delete(ctx, c); err != nil {
			return err
		}
		fmt.Printf("Deleted %s.\n", c.Label())
		return nil
	})
}

// findCredential resolves a stored credential by exact identity key, exact
// label, or a substring matching exactly one account.
func findCredential(ctx context.Context, s *oath.Session, query string) (oath.Credential, error) {
	credentials, err := s.List(ctx)
	if err != nil {
		return oath.Credential{}, err
	}

	var matches []oath.Credential
	q := strings.ToLower(query)
	for _, c := range credentials {
		if c.ID() == query || c.Label() == query {
			return c, nil
		}
		if strings.Contains(strings.ToLower(c.Label()), q) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return oath.Credential{}, fmt.Errorf("no account matching %q", query)
	default:
		names := make([]string, len(matches))
		for i, c := range matches {
			names[i] = c.Label()
		}
		return oath.Credential{}, fmt.Errorf("%q matches multiple accounts: %s", query, strings.Join(names, ", "))
	}
}
