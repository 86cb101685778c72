package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/fatih/color"

	"github.com/oath-vault/oath-vault/account"
	"github.com/oath-vault/oath-vault/oath"
)

type ListCommandInput struct {
	Filter    string
	NamesOnly bool
	NoCodes   bool
}

func ConfigureListCommand(app *kingpin.Application, a *OathVault) {
	input := ListCommandInput{}

	cmd := app.Command("list", "List the accounts on the key, along with their current codes")
	cmd.Alias("ls")

	cmd.Arg("filter", "Show only accounts whose issuer or name contains this").
		StringVar(&input.Filter)

	cmd.Flag("names", "Show only the account names").
		Short('n').
		BoolVar(&input.NamesOnly)

	cmd.Flag("no-codes", "List accounts without calculating codes").
		BoolVar(&input.NoCodes)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := ListCommand(context.Background(), input, a)
		app.FatalIfError(err, "list")
		return nil
	})
}

func ListCommand(ctx context.Context, input ListCommandInput, a *OathVault) error {
	if input.NoCodes {
		return listNames(ctx, input, a)
	}

	model, err := a.RefreshAccounts(ctx)
	if err != nil {
		return err
	}
	model.SetFilter(input.Filter)
	snap := model.Accounts()

	if input.NamesOnly {
		for _, acc := range append(snap.Pinned, snap.Unpinned...) {
			fmt.Println(acc.ID())
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "Account\tCode\tExpires")
	printRows(w, snap.Pinned, true)
	printRows(w, snap.Unpinned, false)
	return w.Flush()
}

func printRows(w *tabwriter.Writer, accounts []*account.Account, pinned bool) {
	now := time.Now()
	marker := ""
	if pinned {
		marker = "* "
	}
	for _, acc := range accounts {
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, acc.Credential.Label(), acc.FormattedCode(), expiresColumn(acc, now))
	}
}

func expiresColumn(acc *account.Account, now time.Time) string {
	state, _ := acc.State(now)
	switch state {
	case account.StateCountingDown:
		left, _ := acc.Code().Remaining(now)
		return left.Truncate(time.Second).String()
	case account.StateExpired:
		return color.RedString("expired")
	default:
		return "requires calculation"
	}
}

// listNames lists the stored accounts without producing any codes, which
// also skips the touch prompts a full calculation pass could trigger.
func listNames(ctx context.Context, input ListCommandInput, a *OathVault) error {
	return a.WithSession(ctx, func(ctx context.Context, s *oath.Session) error {
		credentials, err := s.List(ctx)
		if err != nil {
			return err
		}
		filter := strings.ToLower(input.Filter)
		for _, c := range credentials {
			if filter != "" && !strings.Contains(strings.ToLower(c.Label()), filter) {
				continue
			}
			fmt.Println(c.ID())
		}
		return nil
	})
}
