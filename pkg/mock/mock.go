// Package mock provides a simulated NanoHR peripheral behind the session
// transport seam, allowing the daemon and tests to run without hardware.
// The simulated firmware honors the control protocol: measure-environment
// serves the configured environment values, start-IMU zeroes the cumulative
// step counter and stop-IMU freezes it.
package mock

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nanohr/nanofit/pkg/nanohr"
	"github.com/nanohr/nanofit/pkg/session"
	"github.com/nanohr/nanofit/pkg/tracker"
)

const (
	defaultDeviceName = "NanoHR"
	defaultDeviceAddr = "c0:ff:ee:00:00:01"

	tickInterval = time.Second
)

// Device denotes a simulated NanoHR peripheral implementing the session
// transport
type Device struct {
	name string
	addr string

	mu             sync.Mutex
	found          func(dev tracker.DiscoveredDevice)
	conn           *peripheral
	heartRate      int
	temperatureC   float64
	humidityPct    float64
	steps          uint32
	stepsPerSecond uint32
	imuRunning     bool

	doneChan chan struct{}
}

// WithDeviceName sets the advertised device name
func WithDeviceName(name string) func(*Device) {
	return func(d *Device) {
		d.name = name
	}
}

// WithDeviceAddr sets the device address
func WithDeviceAddr(addr string) func(*Device) {
	return func(d *Device) {
		d.addr = addr
	}
}

// WithEnvironment sets the environment values served by measure-environment
func WithEnvironment(temperatureC, humidityPct float64) func(*Device) {
	return func(d *Device) {
		d.temperatureC = temperatureC
		d.humidityPct = humidityPct
	}
}

// WithStepRate sets the number of steps accumulated per second while the
// IMU is running
func WithStepRate(stepsPerSecond uint32) func(*Device) {
	return func(d *Device) {
		d.stepsPerSecond = stepsPerSecond
	}
}

// New instantiates a new simulated device, executing functional options, if
// any, and starts its firmware tick
func New(options ...func(*Device)) *Device {

	d := &Device{
		name:           defaultDeviceName,
		addr:           defaultDeviceAddr,
		heartRate:      72,
		temperatureC:   21.5,
		humidityPct:    45.,
		stepsPerSecond: 2,
		doneChan:       make(chan struct{}),
	}

	for _, option := range options {
		option(d)
	}

	go d.tick()

	return d
}

// SetHeartRate sets the heart rate pushed via notifications
func (d *Device) SetHeartRate(bpm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heartRate = bpm
}

// SetEnvironment sets the environment values served by measure-environment
func (d *Device) SetEnvironment(temperatureC, humidityPct float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temperatureC = temperatureC
	d.humidityPct = humidityPct
}

// Close stops the simulated firmware
func (d *Device) Close() error {
	close(d.doneChan)
	return nil
}

// Enabled reports the adapter power state (always on for the simulation)
func (d *Device) Enabled() bool {
	return true
}

// StartScan begins delivering the simulated advertisement
func (d *Device) StartScan(serviceUUID string, found func(dev tracker.DiscoveredDevice)) error {
	d.mu.Lock()
	d.found = found
	name, addr := d.name, d.addr
	d.mu.Unlock()

	// One advertisement per scan is all a single simulated device produces
	go found(tracker.DiscoveredDevice{Name: name, Addr: addr, RSSI: -42})
	return nil
}

// StopScan halts advertisement delivery
func (d *Device) StopScan() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.found = nil
	return nil
}

// Connect establishes a simulated connection
func (d *Device) Connect(addr string) (session.Peripheral, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !strings.EqualFold(addr, d.addr) {
		return nil, fmt.Errorf("no peripheral with address %s", addr)
	}

	conn := &peripheral{dev: d}
	d.conn = conn
	return conn, nil
}

// tick is the simulated firmware clock: steps accumulate while the IMU
// runs, heart rate notifications are pushed while connected
func (d *Device) tick() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.doneChan:
			return
		case <-ticker.C:
			d.mu.Lock()
			imuRunning := d.imuRunning
			if imuRunning {
				d.steps += d.stepsPerSecond
			}
			conn := d.conn
			bpm := d.heartRate
			steps := d.steps
			d.mu.Unlock()

			if conn != nil {
				conn.notifyHeartRate(bpm)
				if imuRunning {
					conn.notifySteps(steps)
				}
			}
		}
	}
}

func (d *Device) handleCommand(cmd byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch nanohr.Command(cmd) {
	case nanohr.CmdMeasureEnvironment:
		// Values are served by the subsequent characteristic reads
	case nanohr.CmdStartIMU:
		// The firmware resets its counter on every start
		d.steps = 0
		d.imuRunning = true
	case nanohr.CmdStopIMU:
		d.imuRunning = false
	}
}

func (d *Device) dropConnection(conn *peripheral) {
	d.mu.Lock()
	if d.conn == conn {
		d.conn = nil
	}
	d.mu.Unlock()
}

////////////////////////////////////////////////////////////////////////////////

type peripheral struct {
	dev *Device

	mu           sync.Mutex
	hrNotify     func(data []byte)
	stepsNotify  func(data []byte)
	disconnectCb func()
}

func (p *peripheral) DiscoverCharacteristics(serviceUUID string, charUUIDs []string) (map[string]session.Characteristic, error) {
	if serviceUUID != nanohr.ServiceUUID {
		return nil, fmt.Errorf("unknown service %s", serviceUUID)
	}

	out := make(map[string]session.Characteristic, len(charUUIDs))
	for _, id := range charUUIDs {
		switch id {
		case nanohr.HeartRateCharUUID, nanohr.TemperatureCharUUID, nanohr.HumidityCharUUID,
			nanohr.ControlCharUUID, nanohr.StepsCharUUID:
			out[id] = &characteristic{conn: p, uuid: id}
		default:
			return nil, fmt.Errorf("unknown characteristic %s", id)
		}
	}
	return out, nil
}

func (p *peripheral) OnDisconnect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectCb = fn
}

func (p *peripheral) Disconnect() error {
	p.dev.dropConnection(p)

	p.mu.Lock()
	cb := p.disconnectCb
	p.mu.Unlock()

	if cb != nil {
		go cb()
	}
	return nil
}

func (p *peripheral) notifyHeartRate(bpm int) {
	p.mu.Lock()
	fn := p.hrNotify
	p.mu.Unlock()
	if fn != nil {
		fn([]byte{byte(bpm)})
	}
}

func (p *peripheral) notifySteps(steps uint32) {
	p.mu.Lock()
	fn := p.stepsNotify
	p.mu.Unlock()
	if fn != nil {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, steps)
		fn(buf)
	}
}

////////////////////////////////////////////////////////////////////////////////

type characteristic struct {
	conn *peripheral
	uuid string
}

func (c *characteristic) Read() ([]byte, error) {
	d := c.conn.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	switch c.uuid {
	case nanohr.HeartRateCharUUID:
		return []byte{byte(d.heartRate)}, nil
	case nanohr.TemperatureCharUUID:
		return encodeCenti(d.temperatureC), nil
	case nanohr.HumidityCharUUID:
		return encodeCenti(d.humidityPct), nil
	case nanohr.StepsCharUUID:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, d.steps)
		return buf, nil
	}
	return nil, fmt.Errorf("characteristic %s is not readable", c.uuid)
}

func (c *characteristic) Write(data []byte) error {
	if c.uuid != nanohr.ControlCharUUID {
		return fmt.Errorf("characteristic %s is not writable", c.uuid)
	}
	if len(data) != 1 {
		return fmt.Errorf("control commands are one byte, got %d", len(data))
	}
	c.conn.dev.handleCommand(data[0])
	return nil
}

func (c *characteristic) Subscribe(fn func(data []byte)) error {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()

	switch c.uuid {
	case nanohr.HeartRateCharUUID:
		c.conn.hrNotify = fn
	case nanohr.StepsCharUUID:
		c.conn.stepsNotify = fn
	default:
		return fmt.Errorf("characteristic %s does not notify", c.uuid)
	}
	return nil
}

func encodeCenti(v float64) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(int16(v*100)))
	return buf
}
