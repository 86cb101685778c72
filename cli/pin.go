package cli

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
)

type PinCommandInput struct {
	Query string
	Unpin bool
}

func ConfigurePinCommand(app *kingpin.Application, a *OathVault) {
	input := PinCommandInput{}

	cmd := app.Command("pin", "Pin an account so it lists first")

	cmd.Arg("account", "Account to pin, by name or unique substring").
		Required().
		StringVar(&input.Query)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := PinCommand(context.Background(), input, a)
		app.FatalIfError(err, "pin")
		return nil
	})

	unpin := app.Command("unpin", "Unpin a pinned account")

	unpin.Arg("account", "Account to unpin, by name or unique substring").
		Required().
		StringVar(&input.Query)

	unpin.Action(func(c *kingpin.ParseContext) error {
		input.Unpin = true
		err := PinCommand(context.Background(), input, a)
		app.FatalIfError(err, "unpin")
		return nil
	})
}

func PinCommand(ctx context.Context, input PinCommandInput, a *OathVault) error {
	return a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		c, err := findCredential(ctx, s, input.Query)
		if err != nil {
			return err
		}
		settings, err := a.Settings()
		if err != nil {
			return err
		}
		if err := settings.SetFavorite(s.DeviceID(), c.ID(), !input.Unpin); err != nil {
			return err
		}
		if input.Unpin {
			fmt.Printf("Unpinned %s.\n", c.Label())
		} else {
			fmt.Printf("Pinned %s.\n", c.Label())
		}
		return nil
	})
}
