package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prompt"
)

type ResetCommandInput struct {
	Force bool
}

func ConfigureResetCommand(app *kingpin.Application, a *OathVault) {
	input := ResetCommandInput{}

	cmd := app.Command("reset", "Wipe all accounts and the password from the key")

	cmd.Flag("force", "Skip the confirmation prompts").
		Short('f').
		BoolVar(&input.Force)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := ResetCommand(context.Background(), input, a)
		app.FatalIfError(err, "reset")
		return nil
	})
}

func ResetCommand(ctx context.Context, input ResetCommandInput, a *OathVault) error {
	if !input.Force {
		r, err := prompt.TerminalPrompt("This deletes every account stored on the key. Continue? (y|N) ")
		if err != nil {
			return err
		}
		if !strings.EqualFold(r, "y") && !strings.EqualFold(r, "yes") {
			return nil
		}
		r, err = prompt.TerminalPrompt("There is no way back. Type \"reset\" to confirm: ")
		if err != nil {
			return err
		}
		if r != "reset" {
			return nil
		}
	}

	var deviceID string
	err := a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		deviceID = s.DeviceID()
		return s.Reset(ctx)
	})
	if err != nil {
		return err
	}

	// Saved passwords for the wiped applet no longer match anything.
	if kr, err := a.Keyring(); err == nil {
		store := &oath.AccessKeyStore{Keyring: kr}
		_ = store.Remove(deviceID)
	}
	if settings, err := a.Settings(); err == nil {
		_ = settings.SetSavePolicy(deviceID, oath.SaveUndecided)
	}

	fmt.Println("The key has been reset.")
	return nil
}
