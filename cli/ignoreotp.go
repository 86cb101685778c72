package cli

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin"
)

type IgnoreOTPCommandInput struct {
	Serial string
}

func ConfigureIgnoreOTPCommand(app *kingpin.Application, a *OathVault) {
	input := IgnoreOTPCommandInput{}

	cmd := app.Command("ignore-otp", "Stop warning about the OTP USB application for a key serial").
		Hidden()

	cmd.Arg("serial", "Serial number of the key").
		Required().
		StringVar(&input.Serial)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := IgnoreOTPCommand(context.Background(), input, a)
		app.FatalIfError(err, "ignore-otp")
		return nil
	})
}

func IgnoreOTPCommand(ctx context.Context, input IgnoreOTPCommandInput, a *OathVault) error {
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	if err := settings.IgnoreOTPSerial(input.Serial); err != nil {
		return err
	}
	fmt.Printf("Warnings about the OTP application on key %s are now suppressed.\n", input.Serial)
	return nil
}
