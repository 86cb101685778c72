package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oath-vault/oath-vault/oath"
)

func testSettings(t *testing.T) *Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// reload parses the file back from disk, proving the mutation was persisted.
func reload(t *testing.T, s *Settings) *Settings {
	t.Helper()
	loaded, err := Load(s.path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return loaded
}

func TestFavoritesRoundTrip(t *testing.T) {
	s := testSettings(t)

	if got := s.Favorites("dev-1"); len(got) != 0 {
		t.Errorf("fresh settings have favorites %v", got)
	}

	if err := s.SetFavorite("dev-1", "30/GitHub:dev", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFavorite("dev-1", "Legacy:dev", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFavorite("dev-2", "30/Other:x", true); err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"30/GitHub:dev": true, "Legacy:dev": true}
	if diff := cmp.Diff(want, reload(t, s).Favorites("dev-1")); diff != "" {
		t.Errorf("favorites mismatch (-want +got):\n%s", diff)
	}

	if err := s.SetFavorite("dev-1", "Legacy:dev", false); err != nil {
		t.Fatal(err)
	}
	want = map[string]bool{"30/GitHub:dev": true}
	if diff := cmp.Diff(want, reload(t, s).Favorites("dev-1")); diff != "" {
		t.Errorf("favorites after unpin (-want +got):\n%s", diff)
	}
}

func TestSavePolicyRoundTrip(t *testing.T) {
	s := testSettings(t)

	if got := s.SavePolicy("dev-1"); got != oath.SaveUndecided {
		t.Errorf("default policy = %v, want undecided", got)
	}
	if err := s.SetSavePolicy("dev-1", oath.SaveLock); err != nil {
		t.Fatal(err)
	}
	if got := reload(t, s).SavePolicy("dev-1"); got != oath.SaveLock {
		t.Errorf("policy = %v, want SaveLock", got)
	}
}

func TestResetSavePolicies(t *testing.T) {
	s := testSettings(t)
	if err := s.SetSavePolicy("dev-1", oath.SavePlain); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSavePolicy("dev-2", oath.SaveNever); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetSavePolicies(); err != nil {
		t.Fatal(err)
	}
	loaded := reload(t, s)
	if got := loaded.SavePolicy("dev-1"); got != oath.SaveUndecided {
		t.Errorf("dev-1 policy after reset = %v", got)
	}
	if got := loaded.SavePolicy("dev-2"); got != oath.SaveUndecided {
		t.Errorf("dev-2 policy after reset = %v", got)
	}
}

func TestIgnoredOTPSerials(t *testing.T) {
	s := testSettings(t)

	if s.IsOTPSerialIgnored("123") {
		t.Error("fresh settings ignore serial 123")
	}
	if err := s.IgnoreOTPSerial("123"); err != nil {
		t.Fatal(err)
	}
	if err := s.IgnoreOTPSerial("456"); err != nil {
		t.Fatal(err)
	}
	// Recording the same serial twice is a no-op.
	if err := s.IgnoreOTPSerial("123"); err != nil {
		t.Fatal(err)
	}

	loaded := reload(t, s)
	if !loaded.IsOTPSerialIgnored("123") || !loaded.IsOTPSerialIgnored("456") {
		t.Error("ignored serials were not persisted")
	}
	if loaded.IsOTPSerialIgnored("789") {
		t.Error("unknown serial reported as ignored")
	}
}

func TestBypassTouchRoundTrip(t *testing.T) {
	s := testSettings(t)
	if s.BypassTouch() {
		t.Error("bypass-touch defaults to on")
	}
	if err := s.SetBypassTouch(true); err != nil {
		t.Fatal(err)
	}
	if !reload(t, s).BypassTouch() {
		t.Error("bypass-touch setting not persisted")
	}
}

func TestPathOverride(t *testing.T) {
	t.Setenv("OATH_VAULT_CONFIG", "/tmp/custom-config")
	got, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/custom-config" {
		t.Errorf("Path = %q, want override", got)
	}

	os.Unsetenv("OATH_VAULT_CONFIG")
	got, err = Path()
	if err != nil {
		t.Fatal(err)
	}
	home, _ := os.UserHomeDir()
	if got != filepath.Join(home, ".oath-vault", "config") {
		t.Errorf("Path = %q, want default under home", got)
	}
}
