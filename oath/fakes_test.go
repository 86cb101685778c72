package oath

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

// fakeApplet scripts the device side of a session. Codes and raw responses
// are served from maps keyed by identity key.
type fakeApplet struct {
	mu             sync.Mutex
	creds          []Credential
	codes          map[string]Code
	responses      map[string][]byte
	accessKey      []byte
	locked         bool
	putCalls       int
	calculateCalls map[string]int
	lastBatchTime  time.Time
	lastCalcTime   time.Time
	lastChallenge  []byte
	opErr          error // returned once from the next List call
}

func newFakeApplet(creds ...Credential) *fakeApplet {
	return &fakeApplet{
		creds:          creds,
		codes:          map[string]Code{},
		responses:      map[string][]byte{},
		calculateCalls: map[string]int{},
	}
}

func (f *fakeApplet) gate() error {
	if f.opErr != nil {
		err := f.opErr
		f.opErr = nil
		return err
	}
	if f.locked {
		return ErrAuthRequired
	}
	return nil
}

func (f *fakeApplet) List(ctx context.Context) ([]Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	return append([]Credential(nil), f.creds...), nil
}

func (f *fakeApplet) CalculateAll(ctx context.Context, timestamp time.Time) ([]CredentialCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	f.lastBatchTime = timestamp
	out := make([]CredentialCode, 0, len(f.creds))
	for _, c := range f.creds {
		cc := CredentialCode{Credential: c}
		if code, ok := f.codes[c.ID()]; ok && c.Type == TypeTOTP && !c.RequiresTouch {
			cc.Code = &code
		}
		out = append(out, cc)
	}
	return out, nil
}

func (f *fakeApplet) Calculate(ctx context.Context, c Credential, timestamp time.Time) (Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return Code{}, err
	}
	f.lastCalcTime = timestamp
	f.calculateCalls[c.ID()]++
	return f.codes[c.ID()], nil
}

func (f *fakeApplet) CalculateResponse(ctx context.Context, credentialID string, challenge []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return nil, err
	}
	f.lastChallenge = append([]byte(nil), challenge...)
	return f.responses[credentialID], nil
}

func (f *fakeApplet) Put(ctx context.Context, t CredentialTemplate, requiresTouch bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return err
	}
	f.putCalls++
	c := t.Credential()
	c.RequiresTouch = requiresTouch
	f.creds = append(f.creds, c)
	return nil
}

func (f *fakeApplet) Delete(ctx context.Context, c Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return err
	}
	for i, existing := range f.creds {
		if existing.ID() == c.ID() {
			f.creds = append(f.creds[:i], f.creds[i+1:]...)
			return nil
		}
	}
	return ErrNoCredential
}

func (f *fakeApplet) Rename(ctx context.Context, c Credential, issuer, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.gate(); err != nil {
		return err
	}
	for i, existing := range f.creds {
		if existing.ID() == c.ID() {
			f.creds[i].Issuer = issuer
			f.creds[i].Account = account
			return nil
		}
	}
	return ErrNoCredential
}

func (f *fakeApplet) DeriveAccessKey(password string) ([]byte, error) {
	return []byte("key:" + password), nil
}

func (f *fakeApplet) Unlock(ctx context.Context, accessKey []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accessKey == nil {
		f.locked = false
		return nil
	}
	if !bytes.Equal(accessKey, f.accessKey) {
		return ErrWrongPassword
	}
	f.locked = false
	return nil
}

func (f *fakeApplet) SetPassword(ctx context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessKey = []byte("key:" + password)
	return nil
}

func (f *fakeApplet) RemovePassword(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessKey = nil
	return nil
}

func (f *fakeApplet) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = nil
	f.accessKey = nil
	f.locked = false
	return nil
}

type fakeConn struct {
	transport Transport
	id        string
	info      DeviceInfo
	infoErr   error
	applet    *fakeApplet

	mu           sync.Mutex
	closeMessage string
	closed       bool
}

func (c *fakeConn) Transport() Transport { return c.transport }
func (c *fakeConn) DeviceID() string     { return c.id }

func (c *fakeConn) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	if c.infoErr != nil {
		return DeviceInfo{}, c.infoErr
	}
	return c.info, nil
}

func (c *fakeConn) OATH(ctx context.Context) (Applet, error) {
	return c.applet, nil
}

func (c *fakeConn) Close(message string) {
	c.mu.Lock()
	c.closed = true
	c.closeMessage = message
	c.mu.Unlock()
}

type fakeDriver struct {
	transport   Transport
	connects    chan DeviceConn
	disconnects chan Disconnect

	mu          sync.Mutex
	requests    int
	stopped     bool
	stopMessage string
}

func newFakeDriver(t Transport) *fakeDriver {
	return &fakeDriver{
		transport:   t,
		connects:    make(chan DeviceConn, 4),
		disconnects: make(chan Disconnect, 4),
	}
}

func (d *fakeDriver) Transport() Transport           { return d.transport }
func (d *fakeDriver) Connects() <-chan DeviceConn    { return d.connects }
func (d *fakeDriver) Disconnects() <-chan Disconnect { return d.disconnects }

func (d *fakeDriver) Request(ctx context.Context) error {
	d.mu.Lock()
	d.requests++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Stop(message string) {
	d.mu.Lock()
	d.stopped = true
	d.stopMessage = message
	d.mu.Unlock()
}

func (d *fakeDriver) plugIn(c *fakeConn) { d.connects <- c }

func (d *fakeDriver) unplug(c *fakeConn, err error) {
	d.disconnects <- Disconnect{Conn: c, Err: err}
}

// eventually polls until cond holds, failing the test after two seconds.
// Driver events travel through the handler's own goroutines, so tests have
// to wait for them to land.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func (h *SessionHandler) hasWired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wired != nil
}

func (h *SessionHandler) hasCurrent() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}
