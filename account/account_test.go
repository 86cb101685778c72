package account

import (
	"testing"
	"time"

	"github.com/oath-vault/oath-vault/oath"
)

func totpAccount(value string, from, until time.Time) *Account {
	a := &Account{Credential: oath.Credential{Type: oath.TypeTOTP, Issuer: "GitHub", Account: "dev", Period: 30}}
	a.setCode(oath.Code{Value: value, ValidFrom: from, ValidUntil: until}, from)
	return a
}

func TestStateCountsDownMonotonically(t *testing.T) {
	from := time.Unix(1000, 0)
	until := from.Add(30 * time.Second)
	a := totpAccount("123456", from, until)

	prev := 1.1
	for offset := time.Duration(0); offset < 30*time.Second; offset += 3 * time.Second {
		state, fraction := a.State(from.Add(offset))
		if state != StateCountingDown {
			t.Fatalf("state at +%s = %v, want counting down", offset, state)
		}
		if fraction >= prev {
			t.Fatalf("fraction at +%s = %v, not below previous %v", offset, fraction, prev)
		}
		if fraction <= 0 || fraction > 1 {
			t.Fatalf("fraction at +%s = %v, out of range", offset, fraction)
		}
		prev = fraction
	}

	if state, _ := a.State(until); state != StateExpired {
		t.Errorf("state at expiry = %v, want expired", state)
	}
}

func TestStateTouchCredentialNeverExpires(t *testing.T) {
	from := time.Unix(1000, 0)
	a := totpAccount("123456", from, from.Add(30*time.Second))
	a.Credential.RequiresTouch = true

	state, _ := a.State(from.Add(time.Minute))
	if state != StateRequiresCalculation {
		t.Errorf("state = %v; touch credentials fall back to requiring calculation", state)
	}
}

func TestStateHOTPAlwaysRequiresCalculation(t *testing.T) {
	a := &Account{Credential: oath.Credential{Type: oath.TypeHOTP, Issuer: "Legacy", Account: "dev"}}
	if state, _ := a.State(time.Now()); state != StateRequiresCalculation {
		t.Errorf("state without code = %v", state)
	}
	a.setCode(oath.Code{Value: "755224", ValidFrom: time.Now()}, time.Now())
	if state, _ := a.State(time.Now()); state != StateRequiresCalculation {
		t.Errorf("state with code = %v; HOTP codes have no countdown", state)
	}
}

func TestShowsRefreshHOTPGrace(t *testing.T) {
	now := time.Unix(1000, 0)
	a := &Account{Credential: oath.Credential{Type: oath.TypeHOTP, Issuer: "Legacy", Account: "dev"}}

	if !a.ShowsRefresh(now) {
		t.Error("fresh HOTP account must show the refresh affordance")
	}
	a.setCode(oath.Code{Value: "755224", ValidFrom: now}, now)
	if a.ShowsRefresh(now.Add(2 * time.Second)) {
		t.Error("refresh affordance flickered back during the grace window")
	}
	if !a.ShowsRefresh(now.Add(6 * time.Second)) {
		t.Error("refresh affordance missing after the grace window")
	}
}

func TestFormattedCode(t *testing.T) {
	now := time.Unix(1000, 0)

	a := totpAccount("123456", now, now.Add(30*time.Second))
	if got := a.FormattedCode(); got != "123 456" {
		t.Errorf("six digit code = %q, want %q", got, "123 456")
	}

	a = totpAccount("12345678", now, now.Add(30*time.Second))
	if got := a.FormattedCode(); got != "1234 5678" {
		t.Errorf("eight digit code = %q, want %q", got, "1234 5678")
	}

	steam := &Account{Credential: oath.Credential{Type: oath.TypeTOTP, Issuer: "Steam", Account: "gamer", Period: 30}}
	steam.setCode(oath.Code{Value: "K5J2M", ValidFrom: now, ValidUntil: now.Add(30 * time.Second)}, now)
	if got := steam.FormattedCode(); got != "K5J2M" {
		t.Errorf("steam code = %q, want unsplit %q", got, "K5J2M")
	}

	empty := &Account{Credential: oath.Credential{Type: oath.TypeTOTP, Issuer: "X", Account: "y"}}
	if got := empty.FormattedCode(); got != "••••••" {
		t.Errorf("placeholder = %q", got)
	}
}

func TestScheduleExpiryFires(t *testing.T) {
	now := time.Now()
	a := totpAccount("123456", now.Add(-29*time.Second), now.Add(50*time.Millisecond))

	fired := make(chan string, 1)
	a.scheduleExpiry(now, func(id string) { fired <- id })

	select {
	case id := <-fired:
		if id != a.ID() {
			t.Errorf("fired with id %q, want %q", id, a.ID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expiry wake-up never fired")
	}
}

func TestScheduleExpiryReplacesEarlierTimer(t *testing.T) {
	now := time.Now()
	a := totpAccount("123456", now.Add(-29*time.Second), now.Add(40*time.Millisecond))

	fired := make(chan string, 2)
	a.scheduleExpiry(now, func(id string) { fired <- id })
	a.scheduleExpiry(now, func(id string) { fired <- id })

	<-time.After(150 * time.Millisecond)
	if len(fired) != 1 {
		t.Errorf("wake-up fired %d times, want once", len(fired))
	}
}

func TestScheduleExpirySkipsHOTP(t *testing.T) {
	now := time.Now()
	a := &Account{Credential: oath.Credential{Type: oath.TypeHOTP, Issuer: "Legacy", Account: "dev"}}
	a.setCode(oath.Code{Value: "755224", ValidFrom: now}, now)

	a.scheduleExpiry(now, func(string) { t.Error("HOTP must never self-refresh") })
	time.Sleep(20 * time.Millisecond)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		t.Error("timer armed for an HOTP account")
	}
}
