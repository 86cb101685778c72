package oath

import (
	"bytes"
	"context"
	"errors"
	"log"
)

// SavePolicy is the user's per-device choice for persisting the unlock
// secret.
type SavePolicy int

const (
	SaveUndecided SavePolicy = iota
	SaveNever
	SavePlain
	SaveLock // behind the OS keychain's own authentication gate
)

// Prompter is the UI collaborator. The core never presents anything itself;
// it asks the prompter for passwords and hands it status messages to show.
type Prompter interface {
	// CollectPassword asks the user for the key's password. retry indicates
	// a previous attempt was rejected. Returns ErrPromptCancelled when the
	// user backs out.
	CollectPassword(ctx context.Context, retry bool) (string, error)
	// CollectSavePolicy asks whether to persist the unlock secret.
	CollectSavePolicy(ctx context.Context) (SavePolicy, error)
	ShowStatus(message string)
	ShowTouchRequired()
}

// PasswordPrefs records the per-device save policy. Satisfied by
// prefs.Settings.
type PasswordPrefs interface {
	SavePolicy(deviceID string) SavePolicy
	SetSavePolicy(deviceID string, p SavePolicy) error
}

// AuthCoordinator wraps key operations that may fail with authentication
// errors. It consults the in-memory caches and the persistent store before
// prompting, retries the wrapped operation after a successful unlock, and
// offers to persist a freshly entered password.
type AuthCoordinator struct {
	Handler    *SessionHandler
	Passwords  *PasswordCache
	AccessKeys *AccessKeyCache
	Store      *AccessKeyStore // optional
	Prefs      PasswordPrefs   // optional
	Prompter   Prompter
}

// Do acquires a session and runs op against it, handling authentication and
// stale-session errors. Any other error is terminal for the operation: a
// live contactless session is torn down with the error as status message and
// the error propagates unchanged.
func (a *AuthCoordinator) Do(ctx context.Context, op func(ctx context.Context, s *Session) error) error {
	s, err := a.Handler.AnySession(ctx)
	if err != nil {
		return err
	}

	staleRetried := false
	promptRetry := false
	for {
		err = op(ctx, s)
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, ErrStaleSession) && !staleRetried:
			// The applet session went stale, not the user's credentials.
			// Drop the cached session and retry once on a fresh one.
			staleRetried = true
			a.Handler.Invalidate(s)
			s, err = a.Handler.AnySession(ctx)
			if err != nil {
				return err
			}

		case IsAuthError(err):
			wrong := errors.Is(err, ErrWrongPassword) || promptRetry
			if err := a.unlock(ctx, s, wrong); err != nil {
				return err
			}
			promptRetry = true

		default:
			s.End(err.Error())
			return err
		}
	}
}

// unlock tries cached secrets first, then the persistent store, then prompts
// the user. A password is cached only after the device accepts it.
func (a *AuthCoordinator) unlock(ctx context.Context, s *Session, retryPrompt bool) error {
	deviceID := s.DeviceID()

	if !retryPrompt {
		if key, ok := a.AccessKeys.Get(deviceID); ok {
			if err := s.UnlockWithKey(ctx, key); err == nil {
				return nil
			}
			log.Printf("cached access key for %s rejected", deviceID)
		}
		if password, ok := a.Passwords.Get(deviceID); ok {
			if err := s.Unlock(ctx, password); err == nil {
				return nil
			}
			log.Printf("cached password for %s rejected", deviceID)
		}
		if a.Store != nil {
			if key, err := a.Store.Get(deviceID); err == nil {
				if err := s.UnlockWithKey(ctx, key); err == nil {
					a.AccessKeys.Set(deviceID, key)
					return nil
				}
				log.Printf("stored access key for %s rejected", deviceID)
			}
		}
	}

	for {
		password, err := a.Prompter.CollectPassword(ctx, retryPrompt)
		if err != nil {
			return err
		}
		err = s.Unlock(ctx, password)
		if errors.Is(err, ErrWrongPassword) {
			retryPrompt = true
			continue
		}
		if err != nil {
			return err
		}

		a.Passwords.Set(deviceID, password)
		key, err := s.DeriveAccessKey(password)
		if err != nil {
			log.Printf("deriving access key for %s: %v", deviceID, err)
			return nil
		}
		a.AccessKeys.Set(deviceID, key)
		a.offerToSave(ctx, deviceID, key)
		return nil
	}
}

func (a *AuthCoordinator) offerToSave(ctx context.Context, deviceID string, key []byte) {
	if a.Store == nil || a.Prefs == nil {
		return
	}
	if a.Prefs.SavePolicy(deviceID) == SaveNever {
		return
	}
	if stored, err := a.Store.Get(deviceID); err == nil && bytes.Equal(stored, key) {
		return
	}

	policy, err := a.Prompter.CollectSavePolicy(ctx)
	if err != nil {
		return
	}
	if err := a.Prefs.SetSavePolicy(deviceID, policy); err != nil {
		log.Printf("saving password preference for %s: %v", deviceID, err)
	}
	if policy != SavePlain && policy != SaveLock {
		return
	}
	if err := a.Store.Set(deviceID, key, policy == SaveLock); err != nil {
		_ = a.Prefs.SetSavePolicy(deviceID, SaveUndecided)
		a.Prompter.ShowStatus("Password was not saved: " + err.Error())
	}
}
