// Package prefs stores per-device preferences in an ini file: pinned
// credentials, the password save policy, opt-outs from the OTP interference
// warning, and the bypass-touch setting.
package prefs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	ini "gopkg.in/ini.v1"

	"github.com/oath-vault/oath-vault/oath"
)

const (
	keyPinned       = "pinned"
	keyPasswordSave = "password_save"
	keyIgnoredOTP   = "ignored_otp_serial"
	keyBypassTouch  = "bypass_touch"
)

// Path returns $OATH_VAULT_CONFIG or ~/.oath-vault/config.
func Path() (string, error) {
	if file := os.Getenv("OATH_VAULT_CONFIG"); file != "" {
		return file, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".oath-vault", "config"), nil
}

// Settings is the loaded preference file. Mutating methods write the file
// back immediately.
type Settings struct {
	path string
	file *ini.File
}

// Load parses the preference file. A missing file is not an error.
func Load(path string) (*Settings, error) {
	opts := ini.LoadOptions{AllowShadows: true}
	if _, err := os.Stat(path); err != nil {
		log.Printf("preference file %s doesn't exist", path)
		return &Settings{path: path, file: ini.Empty(opts)}, nil
	}
	f, err := ini.LoadSources(opts, path)
	if err != nil {
		return nil, fmt.Errorf("parsing preference file %q: %w", path, err)
	}
	return &Settings{path: path, file: f}, nil
}

func (s *Settings) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return s.file.SaveTo(s.path)
}

func (s *Settings) deviceSection(deviceID string) *ini.Section {
	return s.file.Section("device " + deviceID)
}

// Favorites returns the set of pinned credential IDs for a device.
func (s *Settings) Favorites(deviceID string) map[string]bool {
	favorites := make(map[string]bool)
	for _, id := range s.deviceSection(deviceID).Key(keyPinned).ValueWithShadows() {
		if id != "" {
			favorites[id] = true
		}
	}
	return favorites
}

// SetFavorite pins or unpins one credential ID for a device.
func (s *Settings) SetFavorite(deviceID, credentialID string, pinned bool) error {
	favorites := s.Favorites(deviceID)
	if pinned == favorites[credentialID] {
		return nil
	}
	if pinned {
		favorites[credentialID] = true
	} else {
		delete(favorites, credentialID)
	}

	sec := s.deviceSection(deviceID)
	sec.DeleteKey(keyPinned)
	for id := range favorites {
		if _, err := sec.NewKey(keyPinned, id); err != nil {
			return err
		}
	}
	return s.save()
}

// SavePolicy returns the password save policy recorded for a device.
func (s *Settings) SavePolicy(deviceID string) oath.SavePolicy {
	n, err := strconv.Atoi(s.deviceSection(deviceID).Key(keyPasswordSave).String())
	if err != nil {
		return oath.SaveUndecided
	}
	return oath.SavePolicy(n)
}

// SetSavePolicy records the password save policy for a device.
func (s *Settings) SetSavePolicy(deviceID string, p oath.SavePolicy) error {
	s.deviceSection(deviceID).Key(keyPasswordSave).SetValue(strconv.Itoa(int(p)))
	return s.save()
}

// ResetSavePolicies clears every device's save policy, used together with
// clearing the stored passwords themselves.
func (s *Settings) ResetSavePolicies() error {
	for _, sec := range s.file.Sections() {
		sec.DeleteKey(keyPasswordSave)
	}
	return s.save()
}

// IsOTPSerialIgnored reports whether the user opted out of the OTP
// interference warning for a key serial.
func (s *Settings) IsOTPSerialIgnored(serial string) bool {
	for _, v := range s.file.Section("").Key(keyIgnoredOTP).ValueWithShadows() {
		if v == serial {
			return true
		}
	}
	return false
}

// IgnoreOTPSerial records an opt-out from the OTP interference warning.
func (s *Settings) IgnoreOTPSerial(serial string) error {
	if s.IsOTPSerialIgnored(serial) {
		return nil
	}
	key := s.file.Section("").Key(keyIgnoredOTP)
	if key.String() == "" {
		key.SetValue(serial)
	} else if err := key.AddShadow(serial); err != nil {
		return err
	}
	return s.save()
}

// BypassTouch reports whether touch-required TOTP credentials should be
// calculated eagerly on wired connections.
func (s *Settings) BypassTouch() bool {
	return s.file.Section("").Key(keyBypassTouch).MustBool(false)
}

func (s *Settings) SetBypassTouch(enabled bool) error {
	s.file.Section("").Key(keyBypassTouch).SetValue(strconv.FormatBool(enabled))
	return s.save()
}
