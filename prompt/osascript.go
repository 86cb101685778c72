package prompt

import (
	"fmt"
	"os/exec"
	"strings"
)

func OSAScriptSecretPrompt(message string) (string, error) {
	cmd := exec.Command("osascript", "-e", fmt.Sprintf(`
		display dialog "%s" default answer "" with hidden answer buttons {"OK", "Cancel"} default button 1
        text returned of the result
        return result`,
		message))

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

func init() {
	Methods["osascript"] = OSAScriptSecretPrompt
}
