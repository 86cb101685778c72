package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
)

func ConfigureInfoCommand(app *kingpin.Application, a *OathVault) {
	cmd := app.Command("info", "Show information about the attached key")

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := InfoCommand(context.Background(), a)
		app.FatalIfError(err, "info")
		return nil
	})
}

func InfoCommand(ctx context.Context, a *OathVault) error {
	return a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		info, err := s.DeviceInfo(ctx)
		if err != nil {
			return err
		}
		credentials, err := s.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
		fmt.Fprintf(w, "Serial:\t%s\n", info.Serial)
		fmt.Fprintf(w, "Firmware:\t%s\n", info.Version)
		fmt.Fprintf(w, "Transport:\t%s\n", s.Transport())
		fmt.Fprintf(w, "Accounts:\t%d\n", len(credentials))
		fmt.Fprintf(w, "OTP over USB:\t%v\n", info.OTPEnabled)
		return w.Flush()
	})
}
