package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/gatt"
	"github.com/nanohr/nanofit/pkg/tracker"
)

const connectTimeout = 30 * time.Second

// GattTransport implements Transport on top of the gatt HCI stack
type GattTransport struct {
	device gatt.Device
	log    tracker.Logger

	mu         sync.Mutex
	powered    bool
	found      func(dev tracker.DiscoveredDevice)
	discovered map[string]gatt.Peripheral
	pending    map[string]chan connectOutcome
	conns      map[string]*gattPeripheral
}

type connectOutcome struct {
	peripheral *gattPeripheral
	err        error
}

// WithGattDevice sets the Bluetooth device
func WithGattDevice(btDevice gatt.Device) func(*GattTransport) {
	return func(t *GattTransport) {
		t.device = btDevice
	}
}

// WithGattLogger sets the logger used by the transport
func WithGattLogger(logger tracker.Logger) func(*GattTransport) {
	return func(t *GattTransport) {
		t.log = logger
	}
}

// NewGattTransport instantiates a new GattTransport, executing functional
// options, if any
func NewGattTransport(options ...func(*GattTransport)) (*GattTransport, error) {

	t := &GattTransport{
		log:        &tracker.NullLogger{},
		discovered: make(map[string]gatt.Peripheral),
		pending:    make(map[string]chan connectOutcome),
		conns:      make(map[string]*gattPeripheral),
	}

	for _, option := range options {
		option(t)
	}

	// Initialize a new GATT device (if not provided as option)
	if t.device == nil {
		btDevice, err := gatt.NewDevice(defaultBTClientOptions...)
		if err != nil {
			return nil, err
		}
		t.device = btDevice
	}

	// Register handlers
	t.device.Handle(
		gatt.AddPeripheralDiscovered(t.onPeriphDiscovered),
		gatt.AddPeripheralConnected(t.onPeriphConnected),
		gatt.AddPeripheralDisconnected(t.onPeriphDisconnected),
	)

	return t, t.device.Init(t.onStateChanged)
}

// Enabled reports whether the HCI adapter is powered on
func (t *GattTransport) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powered
}

// StartScan begins scanning for peripherals advertising the given service
func (t *GattTransport) StartScan(serviceUUID string, found func(dev tracker.DiscoveredDevice)) error {
	u, err := gatt.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("failed to parse service UUID: %w", err)
	}

	t.mu.Lock()
	t.found = found
	t.mu.Unlock()

	return t.device.Scan([]gatt.UUID{u}, false)
}

// StopScan halts an active scan
func (t *GattTransport) StopScan() error {
	t.mu.Lock()
	t.found = nil
	t.mu.Unlock()

	return t.device.StopScanning()
}

// Connect establishes a connection to the peripheral with the given
// address, blocking until the transport confirms or the attempt times out.
// A peripheral not seen by a previous scan is searched for first.
func (t *GattTransport) Connect(addr string) (Peripheral, error) {
	key := strings.ToLower(addr)

	ch := make(chan connectOutcome, 1)
	t.mu.Lock()
	t.pending[key] = ch
	p, known := t.discovered[key]
	t.mu.Unlock()

	if known {
		if err := t.device.Connect(p); err != nil {
			t.clearPending(key)
			return nil, err
		}
	} else {
		// The peripheral has not been discovered yet; scan until it shows
		// up, then onPeriphDiscovered initiates the connection
		if err := t.device.Scan(nil, false); err != nil {
			t.clearPending(key)
			return nil, err
		}
	}

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return outcome.peripheral, nil
	case <-time.After(connectTimeout):
		t.clearPending(key)
		_ = t.device.StopScanning()
		return nil, ErrDeviceNotFound
	}
}

func (t *GattTransport) clearPending(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

////////////////////////////////////////////////////////////////////////////////

func (t *GattTransport) onStateChanged(d gatt.Device, s gatt.State) {
	t.mu.Lock()
	t.powered = s == gatt.StatePoweredOn
	t.mu.Unlock()

	if s != gatt.StatePoweredOn {
		if err := d.StopScanning(); err != nil {
			t.log.Warnf("failed to stop scanning: %s", err)
		}
	}
}

func (t *GattTransport) onPeriphDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	key := strings.ToLower(p.ID())

	name := p.Name()
	if name == "" && a != nil {
		name = a.LocalName
	}

	t.mu.Lock()
	t.discovered[key] = p
	found := t.found
	_, wanted := t.pending[key]
	t.mu.Unlock()

	t.log.Debugf("discovered device `%s/%s`", name, p.ID())

	if found != nil {
		found(tracker.DiscoveredDevice{Name: name, Addr: p.ID(), RSSI: rssi})
	}

	if wanted {
		// Stop scanning once we've got the peripheral we're looking for
		if err := p.Device().StopScanning(); err != nil {
			t.log.Warnf("failed to stop scanning: %s", err)
		}
		if err := p.Device().Connect(p); err != nil {
			t.log.Errorf("failed to connect device `%s/%s`: %s", name, p.ID(), err)
		}
	}
}

func (t *GattTransport) onPeriphConnected(p gatt.Peripheral, connErr error) {
	key := strings.ToLower(p.ID())

	t.mu.Lock()
	ch, ok := t.pending[key]
	delete(t.pending, key)
	var gp *gattPeripheral
	if connErr == nil {
		gp = &gattPeripheral{p: p}
		t.conns[key] = gp
	}
	t.mu.Unlock()

	if !ok {
		// Not an attempt of ours
		if connErr == nil {
			_ = p.Device().CancelConnection(p)
		}
		return
	}

	ch <- connectOutcome{peripheral: gp, err: connErr}
}

func (t *GattTransport) onPeriphDisconnected(p gatt.Peripheral, _ error) {
	key := strings.ToLower(p.ID())

	t.mu.Lock()
	gp := t.conns[key]
	delete(t.conns, key)
	t.mu.Unlock()

	t.log.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	if gp != nil {
		gp.fireDisconnect()
	}
}

////////////////////////////////////////////////////////////////////////////////

type gattPeripheral struct {
	p gatt.Peripheral

	mu           sync.Mutex
	disconnectCb func()
}

func (gp *gattPeripheral) DiscoverCharacteristics(serviceUUID string, charUUIDs []string) (map[string]Characteristic, error) {
	want := normalizeUUID(serviceUUID)

	ss, err := gp.p.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}
	var svc *gatt.Service
	for _, s := range ss {
		if normalizeUUID(s.UUID().String()) == want {
			svc = s
			break
		}
	}
	if svc == nil {
		return nil, ErrServiceNotFound
	}

	cs, err := gp.p.DiscoverCharacteristics(nil, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", err)
	}

	byUUID := make(map[string]*gatt.Characteristic, len(cs))
	for _, c := range cs {
		byUUID[normalizeUUID(c.UUID().String())] = c
	}

	resolved := make(map[string]Characteristic, len(charUUIDs))
	for _, id := range charUUIDs {
		c, ok := byUUID[normalizeUUID(id)]
		if !ok {
			return nil, fmt.Errorf("characteristic %s not found", id)
		}
		resolved[id] = &gattCharacteristic{p: gp.p, c: c}
	}

	return resolved, nil
}

func (gp *gattPeripheral) OnDisconnect(fn func()) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.disconnectCb = fn
}

func (gp *gattPeripheral) Disconnect() error {
	return gp.p.Device().CancelConnection(gp.p)
}

func (gp *gattPeripheral) fireDisconnect() {
	gp.mu.Lock()
	cb := gp.disconnectCb
	gp.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type gattCharacteristic struct {
	p gatt.Peripheral
	c *gatt.Characteristic
}

func (gc *gattCharacteristic) Read() ([]byte, error) {
	return gc.p.ReadCharacteristic(gc.c)
}

func (gc *gattCharacteristic) Write(data []byte) error {
	return gc.p.WriteCharacteristic(gc.c, data, false)
}

func (gc *gattCharacteristic) Subscribe(fn func(data []byte)) error {

	// Descriptors (including the CCCD) must be discovered before
	// notifications can be enabled
	if _, err := gc.p.DiscoverDescriptors(nil, gc.c); err != nil {
		return fmt.Errorf("failed to discover descriptors: %w", err)
	}

	return gc.p.SetNotifyValue(gc.c, func(_ *gatt.Characteristic, data []byte, err error) {
		if err != nil {
			return
		}
		fn(data)
	})
}

func normalizeUUID(u string) string {
	return strings.ToLower(strings.ReplaceAll(u, "-", ""))
}
