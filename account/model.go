package account

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oath-vault/oath-vault/oath"
)

// hotpTouchDelay is how long an HOTP calculation may take before we assume
// the key is waiting for a touch. The key does not reliably advertise a
// touch requirement for HOTP ahead of time.
const hotpTouchDelay = 500 * time.Millisecond

// FavoritesStore persists pinned credential IDs per device. Satisfied by
// prefs.Settings.
type FavoritesStore interface {
	Favorites(deviceID string) map[string]bool
	SetFavorite(deviceID, credentialID string, pinned bool) error
}

// TouchSettings exposes the bypass-touch preference. Satisfied by
// prefs.Settings.
type TouchSettings interface {
	BypassTouch() bool
}

// Snapshot is one render-ready view of the accounts: pinned first, then the
// rest, each sorted case-insensitively by identity key.
type Snapshot struct {
	Pinned   []*Account
	Unpinned []*Account
}

// Model is the calculation engine. Given a session it retrieves all
// credentials, decides per credential whether to trust the batch result or
// issue an individual calculation, and keeps the resulting account list in
// sync with one-shot expiry wake-ups.
type Model struct {
	Favorites FavoritesStore
	Settings  TouchSettings
	Prompter  oath.Prompter // optional

	mu       sync.Mutex
	accounts map[string]*Account
	deviceID string
	wired    bool
	filter   string
	now      func() time.Time
	refresh  chan string
}

func NewModel(favorites FavoritesStore, settings TouchSettings) *Model {
	return &Model{
		Favorites: favorites,
		Settings:  settings,
		accounts:  make(map[string]*Account),
		now:       time.Now,
		refresh:   make(chan string, 16),
	}
}

// RefreshDue delivers the identity key of each account whose code just ran
// out. Only wired sessions self-refresh; a contactless connection is
// transient, so its codes simply expire.
func (m *Model) RefreshDue() <-chan string { return m.refresh }

// SetFilter restricts the snapshot to credentials whose issuer or account
// name contains the substring, case-insensitively.
func (m *Model) SetFilter(filter string) {
	m.mu.Lock()
	m.filter = strings.ToLower(strings.TrimSpace(filter))
	m.mu.Unlock()
}

// Refresh retrieves every credential and its code through one batch call,
// then reissues the calculations the batch path cannot cover:
//
//   - touch-required TOTP when the user bypasses touch and a wired link is up
//   - Steam credentials, whose batch codes use the wrong alphabet
//   - TOTP with a non-standard period, unreliable in batch on some firmware
//
// HOTP is never auto-calculated: each calculation advances a counter on the
// device, so it has to be a deliberate user action.
func (m *Model) Refresh(ctx context.Context, s *oath.Session) error {
	pairs, err := s.CalculateAll(ctx)
	if err != nil {
		return err
	}

	now := m.now()
	wired := s.Transport() == oath.TransportWired
	bypassTouch := wired && m.Settings != nil && m.Settings.BypassTouch()

	fresh := make([]*Account, 0, len(pairs))
	for _, pair := range pairs {
		c := pair.Credential
		code := pair.Code

		switch {
		case c.IsSteam() && (!c.RequiresTouch || bypassTouch):
			if steam, err := s.CalculateSteam(ctx, c); err != nil {
				// The batch code is decimal and must not be shown as a
				// Steam code; leave the account uncalculated instead.
				log.Printf("steam calculation for %s: %v", c.Label(), err)
				code = nil
			} else {
				code = &steam
			}
		case c.Type == oath.TypeTOTP && c.RequiresTouch && bypassTouch:
			m.showTouchRequired(wired)
			if single, err := s.Calculate(ctx, c); err != nil {
				log.Printf("bypass-touch calculation for %s: %v", c.Label(), err)
			} else {
				code = &single
			}
		case c.Type == oath.TypeTOTP && !c.RequiresTouch && c.Period != 0 && c.Period != oath.DefaultPeriod:
			if single, err := s.Calculate(ctx, c); err != nil {
				log.Printf("calculation for %s: %v", c.Label(), err)
			} else {
				code = &single
			}
		}

		a := &Account{Credential: c}
		if code != nil && code.Value != "" {
			a.setCode(*code, now)
		}
		fresh = append(fresh, a)
	}

	m.merge(fresh, s.DeviceID(), wired, now)
	return nil
}

// merge installs the refreshed accounts. An HOTP account found unchanged by
// identity key keeps its previous object so the active-time window survives
// the refresh; everything else is replaced outright.
func (m *Model) merge(fresh []*Account, deviceID string, wired bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.accounts
	m.accounts = make(map[string]*Account, len(fresh))
	m.deviceID = deviceID
	m.wired = wired

	favorites := map[string]bool{}
	if m.Favorites != nil {
		favorites = m.Favorites.Favorites(deviceID)
	}

	for _, a := range fresh {
		id := a.ID()
		if a.Credential.Type == oath.TypeHOTP {
			if prev, ok := old[id]; ok && prev.Credential.Type == oath.TypeHOTP {
				a = prev
			}
		}
		a.Pinned = favorites[id]
		m.accounts[id] = a
		if wired {
			a.scheduleExpiry(now, m.fireRefresh)
		}
	}

	for id, a := range old {
		if _, kept := m.accounts[id]; !kept {
			a.stopTimer()
		}
	}
}

func (m *Model) fireRefresh(id string) {
	select {
	case m.refresh <- id:
	default:
		// a slow consumer misses the hint, nothing more
	}
}

// Calculate runs one deliberate calculation for the identified account and
// installs the new code. For HOTP a touch prompt is surfaced if the key
// doesn't answer within the grace delay.
func (m *Model) Calculate(ctx context.Context, s *oath.Session, id string) (oath.Code, error) {
	m.mu.Lock()
	a, ok := m.accounts[id]
	wired := m.wired
	m.mu.Unlock()
	if !ok {
		return oath.Code{}, oath.ErrNoCredential
	}

	c := a.Credential
	if c.Type == oath.TypeTOTP && c.RequiresTouch && !c.IsSteam() {
		m.showTouchRequired(wired)
	}

	var touchHint *time.Timer
	if c.Type == oath.TypeHOTP {
		touchHint = time.AfterFunc(hotpTouchDelay, func() { m.showTouchRequired(wired) })
	}
	code, err := s.Calculate(ctx, c)
	if touchHint != nil {
		touchHint.Stop()
	}
	if err != nil {
		return oath.Code{}, err
	}

	now := m.now()
	a.setCode(code, now)
	if wired {
		a.scheduleExpiry(now, m.fireRefresh)
	}
	return code, nil
}

// showTouchRequired surfaces the touch prompt only when a key is physically
// attached; over NFC the user is already holding the key to the reader and
// the device calculates without touch.
func (m *Model) showTouchRequired(wired bool) {
	if wired && m.Prompter != nil {
		m.Prompter.ShowTouchRequired()
	}
}

// Pin changes an account's pinned flag and persists it for the device.
func (m *Model) Pin(id string, pinned bool) error {
	m.mu.Lock()
	a, ok := m.accounts[id]
	deviceID := m.deviceID
	m.mu.Unlock()
	if !ok {
		return oath.ErrNoCredential
	}
	if m.Favorites != nil {
		if err := m.Favorites.SetFavorite(deviceID, id, pinned); err != nil {
			return err
		}
	}
	a.Pinned = pinned
	return nil
}

// Lookup finds an account whose identity key, label or account name matches
// the query. An exact identity key match wins; otherwise the query must
// select exactly one account by substring.
func (m *Model) Lookup(query string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[query]; ok {
		return a, nil
	}
	q := strings.ToLower(query)
	var matches []*Account
	for _, a := range m.accounts {
		if strings.Contains(strings.ToLower(a.Credential.Label()), q) {
			matches = append(matches, a)
		}
	}
	if len(matches) != 1 {
		return nil, oath.ErrNoCredential
	}
	return matches[0], nil
}

// Accounts returns the current render-ready snapshot.
func (m *Model) Accounts() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Snapshot
	for _, a := range m.accounts {
		if !a.matchesFilter(m.filter) {
			continue
		}
		if a.Pinned {
			snap.Pinned = append(snap.Pinned, a)
		} else {
			snap.Unpinned = append(snap.Unpinned, a)
		}
	}
	sortAccounts(snap.Pinned)
	sortAccounts(snap.Unpinned)
	return snap
}

// sortAccounts orders case-insensitively by identity key, tie-breaking on
// the raw key so equal-but-for-case entries sort deterministically.
func sortAccounts(accounts []*Account) {
	sort.Slice(accounts, func(i, j int) bool {
		a, b := accounts[i].ID(), accounts[j].ID()
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
}
