package cli

import (
	"context"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prompt"
)

// TerminalUI implements the prompter the session layer calls back into. The
// password prompt goes through the configured prompt driver; everything else
// is plain terminal output on stderr so command output stays parseable.
type TerminalUI struct {
	Secret prompt.SecretPromptFunc
}

var _ oath.Prompter = (*TerminalUI)(nil)

func (u *TerminalUI) CollectPassword(ctx context.Context, retry bool) (string, error) {
	message := "Enter the password for the key: "
	if retry {
		message = "Wrong password, try again: "
	}
	password, err := u.Secret(message)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", oath.ErrPromptCancelled
	}
	return password, nil
}

func (u *TerminalUI) CollectSavePolicy(ctx context.Context) (oath.SavePolicy, error) {
	answer, err := prompt.TerminalPrompt("Save this password? (y)es, behind an unlock (l)ock, (n)ot now, or (N)ever: ")
	if err != nil {
		return oath.SaveUndecided, err
	}
	switch strings.TrimSpace(answer) {
	case "y", "yes":
		return oath.SavePlain, nil
	case "l", "lock":
		return oath.SaveLock, nil
	case "N", "never":
		return oath.SaveNever, nil
	default:
		return oath.SaveUndecided, nil
	}
}

func (u *TerminalUI) ShowStatus(message string) {
	color.New(color.FgYellow).Fprintln(os.Stderr, message)
}

func (u *TerminalUI) ShowTouchRequired() {
	color.New(color.FgCyan).Fprintln(os.Stderr, "Touch your key...")
}
