package main

import (
	"os"

	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/cli"
)

// Version is provided at compile time.
var Version = "dev"

func main() {
	app := kingpin.New("oath-vault", "A command line OTP authenticator backed by hardware security keys.")
	app.Version(Version)

	oathVault := &cli.OathVault{}
	cli.ConfigureGlobals(app, oathVault)
	cli.ConfigureListCommand(app, oathVault)
	cli.ConfigureCodeCommand(app, oathVault)
	cli.ConfigureAddCommand(app, oathVault)
	cli.ConfigureRemoveCommand(app, oathVault)
	cli.ConfigureRenameCommand(app, oathVault)
	cli.ConfigurePinCommand(app, oathVault)
	cli.ConfigurePasswordCommand(app, oathVault)
	cli.ConfigureResetCommand(app, oathVault)
	cli.ConfigureInfoCommand(app, oathVault)
	cli.ConfigureWatchCommand(app, oathVault)
	cli.ConfigureIgnoreOTPCommand(app, oathVault)
	cli.ConfigureBypassTouchCommand(app, oathVault)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
