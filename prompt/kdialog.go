package prompt

import (
	"os/exec"
	"strings"
)

func KDialogSecretPrompt(message string) (string, error) {
	cmd := exec.Command("kdialog", "--password", message, "--title", "oath-vault")

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

func init() {
	Methods["kdialog"] = KDialogSecretPrompt
}
