package prompt

import (
	"fmt"
	"os/exec"
	"strings"
)

func ZenitySecretPrompt(message string) (string, error) {
	cmd := exec.Command("zenity", "--password", "--title=oath-vault", fmt.Sprintf(`--text=%s`, message))

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

func init() {
	Methods["zenity"] = ZenitySecretPrompt
}
