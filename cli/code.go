package cli

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
)

type CodeCommandInput struct {
	Query string
}

func ConfigureCodeCommand(app *kingpin.Application, a *OathVault) {
	input := CodeCommandInput{}

	cmd := app.Command("code", "Calculate the code for one account and print it")

	cmd.Arg("account", "Account to calculate, by name or unique substring").
		Required().
		StringVar(&input.Query)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := CodeCommand(context.Background(), input, a)
		app.FatalIfError(err, "code")
		return nil
	})
}

func CodeCommand(ctx context.Context, input CodeCommandInput, a *OathVault) error {
	model, err := a.RefreshAccounts(ctx)
	if err != nil {
		return err
	}
	acc, err := model.Lookup(input.Query)
	if err != nil {
		return fmt.Errorf("no account matching %q", input.Query)
	}

	coordinator, err := a.Coordinator()
	if err != nil {
		return err
	}
	var code oath.Code
	err = coordinator.Do(ctx, func(ctx context.Context, s *oath.Session) error {
		code, err = model.Calculate(ctx, s, acc.ID())
		return err
	})
	if err != nil {
		return err
	}

	fmt.Println(code.Value)
	return nil
}
