package ykman

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/oath-vault/oath-vault/oath"
)

const defaultPollInterval = 2 * time.Second

// Driver discovers attached keys by polling `ykman list --serials` and
// diffing the serial set between polls. It only ever reports the wired
// transport; contactless readers are not reachable through ykman.
type Driver struct {
	// PollInterval defaults to two seconds when zero.
	PollInterval time.Duration

	connects    chan oath.DeviceConn
	disconnects chan oath.Disconnect

	mu      sync.Mutex
	present map[string]*Conn
	cancel  context.CancelFunc
	started bool
}

var _ oath.Driver = (*Driver)(nil)

func NewDriver() *Driver {
	return &Driver{
		connects:    make(chan oath.DeviceConn, 4),
		disconnects: make(chan oath.Disconnect, 4),
		present:     make(map[string]*Conn),
	}
}

func (d *Driver) Transport() oath.Transport           { return oath.TransportWired }
func (d *Driver) Connects() <-chan oath.DeviceConn    { return d.connects }
func (d *Driver) Disconnects() <-chan oath.Disconnect { return d.disconnects }

// Request starts the poll loop on first call. Wired discovery is passive,
// so subsequent calls are no-ops.
func (d *Driver) Request(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.started = true

	pollCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.poll(pollCtx)
	return nil
}

func (d *Driver) Stop(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.started = false
}

func (d *Driver) poll(ctx context.Context) {
	interval := d.PollInterval
	if interval == 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.scan(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// scan diffs one `ykman list --serials` snapshot against the known set.
func (d *Driver) scan(ctx context.Context) {
	cmd := exec.CommandContext(ctx, executable(), "list", "--serials")
	out, err := cmd.Output()
	if err != nil {
		// Likely no keys attached; ykman exits nonzero then.
		out = nil
	}

	seen := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		serial := strings.TrimSpace(line)
		if serial != "" {
			seen[serial] = true
		}
	}

	d.mu.Lock()
	var arrived []*Conn
	var departed []*Conn
	for serial := range seen {
		if _, ok := d.present[serial]; !ok {
			c := &Conn{serial: serial}
			d.present[serial] = c
			arrived = append(arrived, c)
		}
	}
	for serial, c := range d.present {
		if !seen[serial] {
			delete(d.present, serial)
			departed = append(departed, c)
		}
	}
	d.mu.Unlock()

	for _, c := range arrived {
		log.Printf("key %s attached", c.serial)
		d.connects <- c
	}
	for _, c := range departed {
		log.Printf("key %s detached", c.serial)
		d.disconnects <- oath.Disconnect{Conn: c}
	}
}
