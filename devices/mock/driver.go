package mock

import (
	"context"
	"sync"

	"github.com/oath-vault/oath-vault/oath"
)

// Driver is a connection source for mock devices. A wired driver delivers
// connections when a test calls PlugIn; an NFC driver delivers the armed
// device when discovery is requested.
type Driver struct {
	transport   oath.Transport
	connects    chan oath.DeviceConn
	disconnects chan oath.Disconnect

	mu          sync.Mutex
	armed       *Device
	stopMessage string
	stopped     bool
}

var _ oath.Driver = (*Driver)(nil)

func newDriver(t oath.Transport) *Driver {
	return &Driver{
		transport:   t,
		connects:    make(chan oath.DeviceConn, 4),
		disconnects: make(chan oath.Disconnect, 4),
	}
}

func NewWiredDriver() *Driver { return newDriver(oath.TransportWired) }
func NewNFCDriver() *Driver   { return newDriver(oath.TransportNFC) }

func (d *Driver) Transport() oath.Transport           { return d.transport }
func (d *Driver) Connects() <-chan oath.DeviceConn    { return d.connects }
func (d *Driver) Disconnects() <-chan oath.Disconnect { return d.disconnects }

// PlugIn connects a device, as if it was inserted into a port.
func (d *Driver) PlugIn(dev *Device) *Conn {
	c := &Conn{device: dev, driver: d, transport: d.transport}
	d.connects <- c
	return c
}

// Unplug disconnects, as if the device was physically removed.
func (d *Driver) Unplug(c *Conn, err error) {
	d.disconnect(c, err)
}

// Arm queues a device for the next discovery request, as if the user is
// holding a key near the reader.
func (d *Driver) Arm(dev *Device) {
	d.mu.Lock()
	d.armed = dev
	d.mu.Unlock()
}

func (d *Driver) Request(ctx context.Context) error {
	d.mu.Lock()
	dev := d.armed
	d.armed = nil
	d.stopped = false
	d.mu.Unlock()
	if dev != nil {
		d.connects <- &Conn{device: dev, driver: d, transport: d.transport}
	}
	return nil
}

func (d *Driver) Stop(message string) {
	d.mu.Lock()
	d.stopMessage = message
	d.stopped = true
	d.armed = nil
	d.mu.Unlock()
}

// Stopped reports whether discovery was aborted, and the message it was
// aborted with.
func (d *Driver) Stopped() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped, d.stopMessage
}

func (d *Driver) disconnect(c *Conn, err error) {
	d.disconnects <- oath.Disconnect{Conn: c, Err: err}
}
