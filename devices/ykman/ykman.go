// Package ykman drives physically attached keys through the ykman CLI. It
// keeps the process free of USB and smartcard bindings; everything goes
// through `ykman` subcommands, with stderr mapped onto the session errors
// the layers above understand.
package ykman

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/oath-vault/oath-vault/oath"
)

// executable returns the ykman binary to run, overridable for test doubles
// and nonstandard installs.
func executable() string {
	if p := os.Getenv("OATH_VAULT_YKMAN"); p != "" {
		return p
	}
	return "ykman"
}

// run executes one ykman invocation against a specific device and maps
// failures onto session errors.
func run(ctx context.Context, serial string, args ...string) (string, error) {
	full := append([]string{"--device", serial}, args...)
	log.Printf("running `%s %s`", executable(), strings.Join(full, " "))

	cmd := exec.CommandContext(ctx, executable(), full...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", mapError(err, stderr.String())
	}
	return string(out), nil
}

// mapError translates ykman's stderr chatter into the error vocabulary the
// session layer retries on.
func mapError(err error, stderr string) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "wrong password"):
		return oath.ErrWrongPassword
	case strings.Contains(msg, "authentication required") ||
		strings.Contains(msg, "password required"):
		return oath.ErrAuthRequired
	case strings.Contains(msg, "failed connecting") ||
		strings.Contains(msg, "no yubikey detected") ||
		strings.Contains(msg, "failed to connect"):
		return fmt.Errorf("%w: %s", oath.ErrStaleSession, strings.TrimSpace(stderr))
	}
	if s := strings.TrimSpace(stderr); s != "" {
		return fmt.Errorf("ykman: %s: %w", s, err)
	}
	return fmt.Errorf("ykman: %w", err)
}
