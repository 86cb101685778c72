package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prompt"
)

func ConfigurePasswordCommand(app *kingpin.Application, a *OathVault) {
	cmd := app.Command("password", "Manage the key's password protection")

	set := cmd.Command("set", "Protect the key with a password, or change it")
	set.Action(func(c *kingpin.ParseContext) error {
		err := PasswordSetCommand(context.Background(), a)
		app.FatalIfError(err, "password set")
		return nil
	})

	remove := cmd.Command("remove", "Remove the key's password protection")
	remove.Action(func(c *kingpin.ParseContext) error {
		err := PasswordRemoveCommand(context.Background(), a)
		app.FatalIfError(err, "password remove")
		return nil
	})

	forget := cmd.Command("forget", "Delete all locally saved passwords and their save choices")
	forget.Action(func(c *kingpin.ParseContext) error {
		err := PasswordForgetCommand(a)
		app.FatalIfError(err, "password forget")
		return nil
	})
}

func PasswordSetCommand(ctx context.Context, a *OathVault) error {
	password, err := prompt.TerminalSecretPrompt("New password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	confirmed, err := prompt.TerminalSecretPrompt("Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirmed {
		return fmt.Errorf("passwords do not match")
	}

	err = a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		return s.SetPassword(ctx, password)
	})
	if err != nil {
		return err
	}
	fmt.Println("Password set.")
	return nil
}

func PasswordRemoveCommand(ctx context.Context, a *OathVault) error {
	var deviceID string
	err := a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		deviceID = s.DeviceID()
		return s.RemovePassword(ctx)
	})
	if err != nil {
		return err
	}

	// The stored secret is useless now; drop it along with the save choice.
	kr, err := a.Keyring()
	if err != nil {
		return err
	}
	store := &oath.AccessKeyStore{Keyring: kr}
	if err := store.Remove(deviceID); err != nil && !errors.Is(err, oath.ErrNotFound) {
		return err
	}
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	if err := settings.SetSavePolicy(deviceID, oath.SaveUndecided); err != nil {
		return err
	}

	fmt.Println("Password removed.")
	return nil
}

func PasswordForgetCommand(a *OathVault) error {
	kr, err := a.Keyring()
	if err != nil {
		return err
	}
	store := &oath.AccessKeyStore{Keyring: kr}
	n, err := store.RemoveAll()
	if err != nil {
		return err
	}
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	if err := settings.ResetSavePolicies(); err != nil {
		return err
	}
	fmt.Printf("Forgot %d saved password(s).\n", n)
	return nil
}
