package cli

import (
	"fmt"

	"github.com/alecthomas/kingpin"
)

type BypassTouchCommandInput struct {
	State string
}

func ConfigureBypassTouchCommand(app *kingpin.Application, a *OathVault) {
	input := BypassTouchCommandInput{}

	cmd := app.Command("bypass-touch", "Calculate touch-protected TOTP accounts eagerly on wired connections")

	cmd.Arg("state", "on or off").
		Required().
		EnumVar(&input.State, "on", "off")

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := BypassTouchCommand(input, a)
		app.FatalIfError(err, "bypass-touch")
		return nil
	})
}

func BypassTouchCommand(input BypassTouchCommandInput, a *OathVault) error {
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	if err := settings.SetBypassTouch(input.State == "on"); err != nil {
		return err
	}
	fmt.Printf("Touch bypass is now %s.\n", input.State)
	return nil
}
