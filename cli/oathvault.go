package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/99designs/keyring"
	"github.com/alecthomas/kingpin"

	"github.com/oath-vault/oath-vault/account"
	"github.com/oath-vault/oath-vault/devices/ykman"
	"github.com/oath-vault/oath-vault/oath"
	"github.com/oath-vault/oath-vault/prefs"
	"github.com/oath-vault/oath-vault/prompt"
)

// OathVault is the collection of lazily initialized singletons behind every
// command: the secure store, the preference file, the session handler and
// the calculation engine.
type OathVault struct {
	Debug          bool
	KeyringConfig  keyring.Config
	KeyringBackend string
	PromptDriver   string
	ConfigPath     string
	PhoneHost      bool
	WaitTimeout    time.Duration

	keyringImpl keyring.Keyring
	settings    *prefs.Settings
	handler     *oath.SessionHandler
	coordinator *oath.AuthCoordinator
	model       *account.Model
	ui          *TerminalUI
}

func (a *OathVault) Keyring() (keyring.Keyring, error) {
	if a.keyringImpl == nil {
		if a.KeyringBackend != "" {
			a.KeyringConfig.AllowedBackends = []keyring.BackendType{keyring.BackendType(a.KeyringBackend)}
		}
		var err error
		a.keyringImpl, err = keyring.Open(a.KeyringConfig)
		if err != nil {
			return nil, err
		}
	}
	return a.keyringImpl, nil
}

func (a *OathVault) Settings() (*prefs.Settings, error) {
	if a.settings == nil {
		path := a.ConfigPath
		if path == "" {
			var err error
			path, err = prefs.Path()
			if err != nil {
				return nil, err
			}
		}
		var err error
		a.settings, err = prefs.Load(path)
		if err != nil {
			return nil, err
		}
	}
	return a.settings, nil
}

func (a *OathVault) Handler() (*oath.SessionHandler, error) {
	if a.handler == nil {
		settings, err := a.Settings()
		if err != nil {
			return nil, err
		}
		driver := ykman.NewDriver()
		a.handler = oath.NewSessionHandler(driver)
		a.handler.IgnoredSerials = settings
		if a.PhoneHost {
			a.handler.HostClass = oath.HostPhone
		}
		if err := driver.Request(context.Background()); err != nil {
			return nil, err
		}
	}
	return a.handler, nil
}

func (a *OathVault) UI() *TerminalUI {
	if a.ui == nil {
		a.ui = &TerminalUI{Secret: prompt.Method(a.PromptDriver)}
	}
	return a.ui
}

func (a *OathVault) Coordinator() (*oath.AuthCoordinator, error) {
	if a.coordinator == nil {
		handler, err := a.Handler()
		if err != nil {
			return nil, err
		}
		settings, err := a.Settings()
		if err != nil {
			return nil, err
		}
		kr, err := a.Keyring()
		if err != nil {
			return nil, err
		}
		a.coordinator = &oath.AuthCoordinator{
			Handler:    handler,
			Passwords:  oath.NewPasswordCache(),
			AccessKeys: oath.NewAccessKeyCache(),
			Store:      &oath.AccessKeyStore{Keyring: kr},
			Prefs:      settings,
			Prompter:   a.UI(),
		}
	}
	return a.coordinator, nil
}

func (a *OathVault) Model() (*account.Model, error) {
	if a.model == nil {
		settings, err := a.Settings()
		if err != nil {
			return nil, err
		}
		a.model = account.NewModel(settings, settings)
		a.model.Prompter = a.UI()
	}
	return a.model, nil
}

// AwaitKey blocks until a key is attached and its applet session is open, so
// one-shot commands work when run just before plugging the key in.
func (a *OathVault) AwaitKey(ctx context.Context) (*oath.Session, error) {
	handler, err := a.Handler()
	if err != nil {
		return nil, err
	}
	timeout := a.WaitTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sessions := handler.WiredSessions(ctx)
	select {
	case s, ok := <-sessions:
		if ok {
			return s, nil
		}
	case <-time.After(250 * time.Millisecond):
		a.UI().ShowStatus("Insert your key...")
		if s, ok := <-sessions; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no key found within %s", timeout)
}

// RefreshAccounts acquires a session, runs a full calculation pass and
// returns the engine holding the result.
func (a *OathVault) RefreshAccounts(ctx context.Context) (*account.Model, error) {
	if _, err := a.AwaitKey(ctx); err != nil {
		return nil, err
	}
	coordinator, err := a.Coordinator()
	if err != nil {
		return nil, err
	}
	model, err := a.Model()
	if err != nil {
		return nil, err
	}
	err = coordinator.Do(ctx, func(ctx context.Context, s *oath.Session) error {
		return model.Refresh(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

// WithSession acquires a session and runs op through the auth coordinator,
// retrying after unlock like every other device operation.
func (a *OathVault) WithSession(ctx context.Context, op func(ctx context.Context, s *oath.Session) error) error {
	if _, err := a.AwaitKey(ctx); err != nil {
		return err
	}
	coordinator, err := a.Coordinator()
	if err != nil {
		return err
	}
	return coordinator.Do(ctx, op)
}

func ConfigureGlobals(app *kingpin.Application, a *OathVault) {
	backendsAvailable := []string{}
	for _, backendType := range keyring.AvailableBackends() {
		backendsAvailable = append(backendsAvailable, string(backendType))
	}
	promptsAvailable := prompt.Available()

	a.KeyringConfig = keyring.Config{
		ServiceName:              "oath-vault",
		LibSecretCollectionName:  "oathvault",
		KWalletAppID:             "oath-vault",
		KWalletFolder:            "oath-vault",
		KeychainTrustApplication: true,
		WinCredPrefix:            "oath-vault",
	}

	app.Flag("debug", "Show debugging output").
		BoolVar(&a.Debug)

	app.Flag("backend", fmt.Sprintf("Secret backend to use %v", backendsAvailable)).
		Envar("OATH_VAULT_BACKEND").
		EnumVar(&a.KeyringBackend, backendsAvailable...)

	app.Flag("prompt", fmt.Sprintf("Prompt driver to use %v", promptsAvailable)).
		Default("terminal").
		Envar("OATH_VAULT_PROMPT").
		EnumVar(&a.PromptDriver, promptsAvailable...)

	app.Flag("config", "Path to the preference file").
		Envar("OATH_VAULT_CONFIG").
		StringVar(&a.ConfigPath)

	app.Flag("wait", "How long to wait for a key to be attached").
		Default("10s").
		DurationVar(&a.WaitTimeout)

	app.Flag("phone-host", "Treat this host as phone-class for the OTP interference check").
		Hidden().
		BoolVar(&a.PhoneHost)

	app.PreAction(func(c *kingpin.ParseContext) error {
		if !a.Debug {
			log.SetOutput(io.Discard)
		} else {
			keyring.Debug = true
			log.SetOutput(os.Stderr)
		}
		return nil
	})
}
