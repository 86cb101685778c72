package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
)

type RenameCommandInput struct {
	Query string
	To    string
}

func ConfigureRenameCommand(app *kingpin.Application, a *OathVault) {
	input := RenameCommandInput{}

	cmd := app.Command("rename", "Rename an account on the key")

	cmd.Arg("account", "Account to rename, by name or unique substring").
		Required().
		StringVar(&input.Query)

	cmd.Arg("new-name", "New name, as \"issuer:account\" or just \"account\"").
		Required().
		StringVar(&input.To)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := RenameCommand(context.Background(), input, a)
		app.FatalIfError(err, "rename")
		return nil
	})
}

func RenameCommand(ctx context.Context, input RenameCommandInput, a *OathVault) error {
	issuer, accountName, found := strings.Cut(input.To, ":")
	if !found {
		issuer, accountName = "", input.To
	}

	return a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		c, err := findCredential(ctx, s, input.Query)
		if err != nil {
			return err
		}
		if err := s.Rename(ctx, c, issuer, accountName); err != nil {
			return err
		}

		// Renaming changes the identity key; carry the pin across so the
		// account doesn't silently fall out of the pinned list.
		settings, err := a.Settings()
		if err != nil {
			return err
		}
		if settings.Favorites(s.DeviceID())[c.ID()] {
			renamed := c
			renamed.Issuer = issuer
			renamed.Account = accountName
			if err := settings.SetFavorite(s.DeviceID(), c.ID(), false); err != nil {
				return err
			}
			if err := settings.SetFavorite(s.DeviceID(), renamed.ID(), true); err != nil {
				return err
			}
		}

		fmt.Printf("Renamed %s to %s.\n", c.Label(), input.To)
		return nil
	})
}
