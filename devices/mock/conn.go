package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/oath-vault/oath-vault/oath"
)

// Conn is one open connection to a mock Device.
type Conn struct {
	device    *Device
	driver    *Driver
	transport oath.Transport

	mu           sync.Mutex
	closed       bool
	closeMessage string
}

var _ oath.DeviceConn = (*Conn)(nil)

func (c *Conn) Transport() oath.Transport { return c.transport }

func (c *Conn) DeviceID() string {
	return fmt.Sprintf("mock-%s", c.device.Serial)
}

func (c *Conn) DeviceInfo(ctx context.Context) (oath.DeviceInfo, error) {
	if c.device.InfoErr != nil {
		return oath.DeviceInfo{}, c.device.InfoErr
	}
	return oath.DeviceInfo{
		Serial:     c.device.Serial,
		Version:    c.device.Version,
		OTPEnabled: c.device.OTPEnabled,
	}, nil
}

func (c *Conn) OATH(ctx context.Context) (oath.Applet, error) {
	c.device.mu.Lock()
	locked := c.device.accessKey != nil
	c.device.mu.Unlock()
	return &applet{conn: c, locked: locked}, nil
}

func (c *Conn) Close(message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeMessage = message
	c.mu.Unlock()
	c.driver.disconnect(c, nil)
}

// CloseMessage reports the message the connection was closed with, for
// asserting what an NFC overlay would have shown.
func (c *Conn) CloseMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeMessage
}
