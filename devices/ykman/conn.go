package ykman

import (
	"context"
	"fmt"
	"strings"

	"github.com/oath-vault/oath-vault/oath"
)

// Conn is one attached key, addressed by serial on every invocation.
type Conn struct {
	serial string
}

var _ oath.DeviceConn = (*Conn)(nil)

func (c *Conn) Transport() oath.Transport { return oath.TransportWired }

func (c *Conn) DeviceID() string { return "yubikey-" + c.serial }

// DeviceInfo parses `ykman info`. The output is a human-oriented table, so
// parsing is line-prefix based; a missing firmware line means the output
// shape changed and is reported as invalid.
func (c *Conn) DeviceInfo(ctx context.Context) (oath.DeviceInfo, error) {
	out, err := run(ctx, c.serial, "info")
	if err != nil {
		return oath.DeviceInfo{}, fmt.Errorf("%w: %v", oath.ErrInvalidDeviceInfo, err)
	}

	info := oath.DeviceInfo{Serial: c.serial}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if version, ok := strings.CutPrefix(line, "Firmware version:"); ok {
			info.Version = strings.TrimSpace(version)
		}
		// The applications table lists "OTP <USB state> <NFC state>".
		if fields := strings.Fields(line); len(fields) >= 2 && fields[0] == "OTP" {
			info.OTPEnabled = fields[1] == "Enabled"
		}
	}
	if info.Version == "" {
		return oath.DeviceInfo{}, fmt.Errorf("%w: no firmware version in ykman output", oath.ErrInvalidDeviceInfo)
	}
	return info, nil
}

func (c *Conn) OATH(ctx context.Context) (oath.Applet, error) {
	return &applet{conn: c, keys: map[string]string{}}, nil
}

// Close is a no-op: there is no persistent handle, a wired key stays
// reachable until unplugged.
func (c *Conn) Close(message string) {}
