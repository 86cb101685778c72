package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/fatih/color"

	"github.com/oath-vault/oath-vault/account"
	"github.com/oath-vault/oath-vault/oath"
)

type WatchCommandInput struct {
	Filter string
}

func ConfigureWatchCommand(app *kingpin.Application, a *OathVault) {
	input := WatchCommandInput{}

	cmd := app.Command("watch", "Continuously show the accounts, recalculating as codes expire")

	cmd.Arg("filter", "Show only accounts whose issuer or name contains this").
		StringVar(&input.Filter)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := WatchCommand(context.Background(), input, a)
		app.FatalIfError(err, "watch")
		return nil
	})
}

func WatchCommand(ctx context.Context, input WatchCommandInput, a *OathVault) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	handler, err := a.Handler()
	if err != nil {
		return err
	}
	coordinator, err := a.Coordinator()
	if err != nil {
		return err
	}
	model, err := a.Model()
	if err != nil {
		return err
	}
	model.SetFilter(input.Filter)

	refresh := func() error {
		return coordinator.Do(ctx, func(ctx context.Context, s *oath.Session) error {
			return model.Refresh(ctx, s)
		})
	}

	a.UI().ShowStatus("Waiting for a key...")
	sessions := handler.WiredSessions(ctx)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	havePainted := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-sessions:
			// A key arrived or was replaced; recalculate everything.
			if !ok {
				return nil
			}
			if err := refresh(); err != nil {
				a.UI().ShowStatus(err.Error())
				continue
			}
			renderWatch(model, input.Filter)
			havePainted = true

		case <-model.RefreshDue():
			if err := refresh(); err != nil {
				a.UI().ShowStatus(err.Error())
				continue
			}
			renderWatch(model, input.Filter)

		case <-ticker.C:
			// Repaint so the expiry column counts down.
			if havePainted {
				renderWatch(model, input.Filter)
			}
		}
	}
}

func renderWatch(model *account.Model, filter string) {
	snap := model.Accounts()

	// Repaint in place: move home and clear below.
	fmt.Print("\033[H\033[2J")
	if filter != "" {
		fmt.Printf("Filter: %s\n\n", filter)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	header := color.New(color.Bold)
	header.Fprintln(w, "Account\tCode\tExpires")
	printRows(w, snap.Pinned, true)
	printRows(w, snap.Unpinned, false)
	w.Flush()
}
