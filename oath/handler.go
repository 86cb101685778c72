package oath

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HostClass describes the machine the key is plugged into. Phone-class hosts
// treat a key with the legacy OTP-over-USB application enabled as a keyboard
// and start swallowing keystrokes, so sessions there are refused until the
// user opts out per serial.
type HostClass int

const (
	HostOther HostClass = iota
	HostPhone
	HostTablet
)

// IgnoredSerials reports per-device opt-outs from the OTP interference
// check. Satisfied by prefs.Settings.
type IgnoredSerials interface {
	IsOTPSerialIgnored(serial string) bool
}

// SessionHandler is the single arbiter of the current OATH session. It owns
// at most one live session, bound 1:1 to whichever connection delivered it,
// and consumes driver connect/disconnect events on one goroutine per
// transport.
//
// Configure HostClass and IgnoredSerials before requesting sessions.
type SessionHandler struct {
	HostClass      HostClass
	IgnoredSerials IgnoredSerials

	mu           sync.Mutex
	drivers      map[Transport]Driver
	wired, nfc   DeviceConn
	current      *Session
	opening      chan struct{}
	wiredArrived chan struct{}
	nfcWaiter    chan DeviceConn
	endWaiters   []chan error
	now          func() time.Time
	done         chan struct{}
}

// NewSessionHandler starts consuming events from the given transport
// drivers. At most one driver per transport kind.
func NewSessionHandler(drivers ...Driver) *SessionHandler {
	h := &SessionHandler{
		drivers:      make(map[Transport]Driver),
		wiredArrived: make(chan struct{}),
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, d := range drivers {
		h.drivers[d.Transport()] = d
		go h.watch(d)
	}
	return h
}

// Close stops the event loops. Open connections are left to their drivers.
func (h *SessionHandler) Close() {
	close(h.done)
}

func (h *SessionHandler) watch(d Driver) {
	for {
		select {
		case conn := <-d.Connects():
			h.handleConnect(conn)
		case dc := <-d.Disconnects():
			h.handleDisconnect(dc)
		case <-h.done:
			return
		}
	}
}

func (h *SessionHandler) handleConnect(conn DeviceConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Printf("%s connection to %s established", conn.Transport(), conn.DeviceID())
	switch conn.Transport() {
	case TransportWired:
		h.wired = conn
		close(h.wiredArrived)
		h.wiredArrived = make(chan struct{})
	case TransportNFC:
		h.nfc = conn
		if h.nfcWaiter != nil {
			h.nfcWaiter <- conn
			h.nfcWaiter = nil
		}
	}
}

func (h *SessionHandler) handleDisconnect(dc Disconnect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Printf("%s connection to %s closed: %v", dc.Conn.Transport(), dc.Conn.DeviceID(), dc.Err)
	switch dc.Conn.Transport() {
	case TransportWired:
		if h.wired == dc.Conn {
			h.wired = nil
		}
	case TransportNFC:
		if h.nfc == dc.Conn {
			h.nfc = nil
		}
	}
	if h.current != nil && h.current.conn == dc.Conn {
		h.current = nil
		for _, ch := range h.endWaiters {
			ch <- dc.Err
			close(ch)
		}
		h.endWaiters = nil
	}
}

// AnySession returns the current session if one exists, otherwise opens one
// over the wired connection if a key is plugged in, else falls back to
// contactless discovery.
func (h *SessionHandler) AnySession(ctx context.Context) (*Session, error) {
	h.mu.Lock()
	current := h.current
	wired := h.wired
	nfc := h.nfc
	h.mu.Unlock()

	switch {
	case current != nil:
		return current, nil
	case wired != nil:
		return h.openSession(ctx, wired)
	case nfc != nil:
		return h.openSession(ctx, nfc)
	default:
		return h.NFCSession(ctx)
	}
}

// NFCSession triggers contactless discovery and returns exactly one session,
// or fails. Cancelling ctx stops discovery and fails with
// ErrConnectionCancelled.
func (h *SessionHandler) NFCSession(ctx context.Context) (*Session, error) {
	d := h.drivers[TransportNFC]
	if d == nil {
		return nil, fmt.Errorf("%w: no contactless reader", ErrUnsupportedTransport)
	}

	h.mu.Lock()
	if h.nfc != nil {
		conn := h.nfc
		h.mu.Unlock()
		return h.openSession(ctx, conn)
	}
	waiter := make(chan DeviceConn, 1)
	h.nfcWaiter = waiter
	h.mu.Unlock()

	if err := d.Request(ctx); err != nil {
		h.clearNFCWaiter(waiter)
		return nil, err
	}
	select {
	case conn := <-waiter:
		return h.openSession(ctx, conn)
	case <-ctx.Done():
		h.clearNFCWaiter(waiter)
		d.Stop("")
		return nil, ErrConnectionCancelled
	}
}

func (h *SessionHandler) clearNFCWaiter(waiter chan DeviceConn) {
	h.mu.Lock()
	if h.nfcWaiter == waiter {
		h.nfcWaiter = nil
	}
	h.mu.Unlock()
}

// WiredSessions returns a lazy, restartable sequence of wired sessions: one
// for the connection already open when called, then a fresh one every time a
// key is plugged in. The channel closes when ctx is cancelled.
func (h *SessionHandler) WiredSessions(ctx context.Context) <-chan *Session {
	out := make(chan *Session)
	go func() {
		defer close(out)
		var last DeviceConn
		for {
			h.mu.Lock()
			conn := h.wired
			arrived := h.wiredArrived
			h.mu.Unlock()

			if conn == nil || conn == last {
				select {
				case <-arrived:
				case <-ctx.Done():
					return
				}
				continue
			}

			last = conn
			s, err := h.openSession(ctx, conn)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("opening wired session: %v", err)
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// openSession opens the applet session for conn, serializing concurrent
// callers so two of them never race to open a second session.
func (h *SessionHandler) openSession(ctx context.Context, conn DeviceConn) (*Session, error) {
	for {
		h.mu.Lock()
		if h.current != nil && h.current.conn == conn {
			s := h.current
			h.mu.Unlock()
			return s, nil
		}
		if h.opening == nil {
			h.opening = make(chan struct{})
			h.mu.Unlock()
			break
		}
		ch := h.opening
		h.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ErrConnectionCancelled
		}
	}

	s, err := h.doOpen(ctx, conn)

	h.mu.Lock()
	close(h.opening)
	h.opening = nil
	if err == nil {
		h.current = s
	}
	h.mu.Unlock()
	return s, err
}

func (h *SessionHandler) doOpen(ctx context.Context, conn DeviceConn) (*Session, error) {
	if err := h.checkOTPInterference(ctx, conn); err != nil {
		return nil, err
	}
	applet, err := conn.OATH(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrConnectionCancelled
		}
		return nil, err
	}
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		applet:    applet,
		handler:   h,
		transport: conn.Transport(),
		now:       h.now,
	}
	log.Printf("opened %s session %s on %s", s.transport, s.id, conn.DeviceID())
	return s, nil
}

// checkOTPInterference refuses wired sessions on phone-class hosts while the
// key's legacy OTP-over-USB application is active, unless the user has
// ignored the warning for this serial. Tablets and contactless links are
// unaffected.
func (h *SessionHandler) checkOTPInterference(ctx context.Context, conn DeviceConn) error {
	if h.HostClass != HostPhone || conn.Transport() != TransportWired {
		return nil
	}
	info, err := conn.DeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDeviceInfo, err)
	}
	if !info.OTPEnabled {
		return nil
	}
	if h.IgnoredSerials != nil && h.IgnoredSerials.IsOTPSerialIgnored(info.Serial) {
		return nil
	}
	return &OTPEnabledError{Serial: info.Serial}
}

// Invalidate drops the cached session after a stale-session error so the
// next request opens a fresh one. Pending Ended waiters are released the
// same way a superseded session releases them.
func (h *SessionHandler) Invalidate(s *Session) {
	h.mu.Lock()
	if h.current == s {
		h.current = nil
		for _, ch := range h.endWaiters {
			ch <- nil
			close(ch)
		}
		h.endWaiters = nil
	}
	h.mu.Unlock()
}

func (h *SessionHandler) sessionEnded(s *Session) <-chan error {
	ch := make(chan error, 1)
	h.mu.Lock()
	if h.current != s {
		ch <- nil
		close(ch)
	} else {
		h.endWaiters = append(h.endWaiters, ch)
	}
	h.mu.Unlock()
	return ch
}
