// Package session implements the NanoHR peripheral session: the connection
// state machine, the write-then-read command chaining and the periodic step
// polling. One session owns one physical connection; every transport
// operation and every transport callback is funneled through a single run
// loop so characteristic operations never overlap.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/nanohr/nanofit/pkg/nanohr"
	"github.com/nanohr/nanofit/pkg/tracker"
)

const defaultPollInterval = time.Second

// Session drives the full lifecycle of discovering, connecting to and
// exchanging data with exactly one NanoHR peripheral at a time. Construct
// one per process and share it; intents never block and never return
// connection-layer errors — observe State / the telemetry store instead.
type Session struct {
	transport Transport
	gate      Gate
	telemetry *tracker.Telemetry
	log       tracker.Logger

	pollInterval time.Duration

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	state   tracker.ConnectionState
	devices []tracker.DiscoveredDevice

	stateHandler  func(state tracker.ConnectionState)
	stateChan     chan tracker.ConnectionState
	deviceHandler func(dev tracker.DiscoveredDevice)

	// The fields below are owned by the run loop and must only be touched
	// from ops executed on it.
	seen       map[string]bool
	peripheral Peripheral
	chars      map[string]Characteristic
	pollStop   chan struct{}
}

// New instantiates a new Session on the given transport, executing
// functional options, if any, and starts its run loop.
func New(transport Transport, options ...func(*Session)) *Session {

	s := &Session{
		transport:    transport,
		telemetry:    tracker.NewTelemetry(),
		log:          &tracker.NullLogger{},
		pollInterval: defaultPollInterval,
		ops:          make(chan func(), 16),
		done:         make(chan struct{}),
		seen:         make(map[string]bool),
		state:        tracker.ConnectionState{Phase: tracker.PhaseIdle},
	}

	for _, option := range options {
		option(s)
	}

	if s.gate == nil {
		s.gate = OpenGate{Transport: transport}
	}

	go s.run()

	return s
}

// State returns the current connection state
func (s *Session) State() tracker.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Devices returns the devices discovered by the current / most recent scan,
// each address at most once, in first-seen order
func (s *Session) Devices() []tracker.DiscoveredDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]tracker.DiscoveredDevice, len(s.devices))
	copy(devices, s.devices)
	return devices
}

// Telemetry returns the live telemetry store fed by this session
func (s *Session) Telemetry() *tracker.Telemetry {
	return s.telemetry
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (s *Session) SetStateChangeHandler(fn func(state tracker.ConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHandler = fn
}

// SetStateChangeChannel defines a channel that receives every state change.
// Sends are non-blocking; a full channel drops the update.
func (s *Session) SetStateChangeChannel(ch chan tracker.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateChan = ch
}

// SetDeviceFoundHandler defines a handler function that is called for every
// newly discovered device
func (s *Session) SetDeviceFoundHandler(fn func(dev tracker.DiscoveredDevice)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceHandler = fn
}

// StartScan clears the discovered-device list and begins scanning for
// peripherals advertising the NanoHR service. Missing permission or a
// disabled adapter surfaces as the error state.
func (s *Session) StartScan() {
	s.do(s.startScan)
}

// StopScan halts an active scan. Idempotent: outside the scanning state it
// changes nothing, though the underlying scan is halted regardless.
func (s *Session) StopScan() {
	s.do(s.stopScan)
}

// Connect establishes a connection to the given address, implicitly
// stopping any active scan first. The transition to the connecting state is
// optimistic; the attempt may still fail asynchronously.
func (s *Session) Connect(addr, name string) {
	s.do(func() { s.connect(addr, name) })
}

// Disconnect cancels any step polling and requests a transport-level
// disconnect. Without an established connection it settles in idle.
func (s *Session) Disconnect() {
	s.do(s.disconnect)
}

// RequestEnvironmentMeasurement writes the measure-environment command and
// chains a temperature read followed by a humidity read. No-op unless
// connected with the control characteristic resolved.
func (s *Session) RequestEnvironmentMeasurement() {
	s.do(s.requestEnvironment)
}

// StartIMUSession starts the peripheral's step-counting mode and begins the
// periodic step poll. The firmware resets its cumulative step counter to
// zero on reception; the immediate first read is expected to observe that.
func (s *Session) StartIMUSession() {
	s.do(s.startIMU)
}

// StopIMUSession stops the peripheral's step-counting mode and cancels the
// step poll.
func (s *Session) StopIMUSession() {
	s.do(s.stopIMU)
}

// Close tears down the session: cancels polling, disconnects and stops the
// run loop. The session cannot be reused afterwards; repeated calls are
// no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		closed := make(chan struct{})
		s.do(func() {
			s.stopPoll()
			if s.peripheral != nil {
				_ = s.peripheral.Disconnect()
				s.peripheral = nil
				s.chars = nil
			}
			_ = s.transport.StopScan()
			close(closed)
		})

		select {
		case <-closed:
		case <-s.done:
		}
		close(s.done)
	})
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *Session) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// do schedules op onto the run loop
func (s *Session) do(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *Session) startScan() {
	if !s.gate.HasScanPermission() {
		s.fail(ErrPermissionDenied)
		return
	}
	if !s.gate.AdapterEnabled() {
		s.fail(ErrAdapterUnavailable)
		return
	}

	s.seen = make(map[string]bool)
	s.mu.Lock()
	s.devices = nil
	s.mu.Unlock()

	s.setState(tracker.ConnectionState{Phase: tracker.PhaseScanning})

	if err := s.transport.StartScan(nanohr.ServiceUUID, s.onDeviceFound); err != nil {
		s.fail(fmt.Errorf("failed to start scan: %w", err))
	}
}

func (s *Session) stopScan() {
	// Halt the underlying scan regardless of the current state
	if err := s.transport.StopScan(); err != nil {
		s.log.Warnf("failed to stop scan: %s", err)
	}

	if s.State().Phase == tracker.PhaseScanning {
		s.setState(tracker.ConnectionState{Phase: tracker.PhaseIdle})
	}
}

func (s *Session) onDeviceFound(dev tracker.DiscoveredDevice) {
	s.do(func() {
		if s.State().Phase != tracker.PhaseScanning {
			return
		}
		if s.seen[dev.Addr] {
			return
		}
		s.seen[dev.Addr] = true

		s.mu.Lock()
		s.devices = append(s.devices, dev)
		handler := s.deviceHandler
		s.mu.Unlock()

		s.log.Debugf("discovered device `%s/%s`", dev.Name, dev.Addr)

		if handler != nil {
			handler(dev)
		}
	})
}

func (s *Session) connect(addr, name string) {
	// A connect intent implicitly terminates any active scan
	if err := s.transport.StopScan(); err != nil {
		s.log.Warnf("failed to stop scan before connect: %s", err)
	}

	if !s.gate.HasConnectPermission() {
		s.fail(ErrPermissionDenied)
		return
	}
	if !s.gate.AdapterEnabled() {
		s.fail(ErrAdapterUnavailable)
		return
	}

	s.setState(tracker.ConnectionState{
		Phase:      tracker.PhaseConnecting,
		DeviceName: name,
		DeviceAddr: addr,
	})

	// The transport attempt blocks, so it runs off the loop; its outcome is
	// posted back as an op.
	go func() {
		p, err := s.transport.Connect(addr)
		s.do(func() { s.onConnectDone(addr, name, p, err) })
	}()
}

func (s *Session) onConnectDone(addr, name string, p Peripheral, err error) {
	state := s.State()
	if state.Phase != tracker.PhaseConnecting || state.DeviceAddr != addr {
		// A stale attempt: the session moved on while the transport was busy
		if p != nil {
			_ = p.Disconnect()
		}
		return
	}

	if err != nil {
		s.fail(fmt.Errorf("failed to connect to %s: %w", addr, err))
		return
	}

	chars, err := p.DiscoverCharacteristics(nanohr.ServiceUUID, []string{
		nanohr.HeartRateCharUUID,
		nanohr.TemperatureCharUUID,
		nanohr.HumidityCharUUID,
		nanohr.ControlCharUUID,
		nanohr.StepsCharUUID,
	})
	if err != nil {
		_ = p.Disconnect()
		s.fail(fmt.Errorf("failed to resolve characteristics on %s: %w", addr, err))
		return
	}

	s.peripheral = p
	s.chars = chars

	p.OnDisconnect(func() {
		s.do(s.onTransportDisconnected)
	})

	// Notifications are enabled once, right after resolution. Heart rate is
	// push-only; step notifications are accepted alongside the poll.
	if hr := chars[nanohr.HeartRateCharUUID]; hr != nil {
		if err := hr.Subscribe(s.onHeartRateNotify); err != nil {
			s.log.Warnf("failed to subscribe heart rate notifications: %s", err)
		}
	}
	if st := chars[nanohr.StepsCharUUID]; st != nil {
		if err := st.Subscribe(s.onStepsNotify); err != nil {
			s.log.Debugf("failed to subscribe step notifications: %s", err)
		}
	}

	s.setState(tracker.ConnectionState{
		Phase:      tracker.PhaseConnected,
		DeviceName: name,
		DeviceAddr: addr,
	})
}

func (s *Session) disconnect() {
	s.stopPoll()

	if s.peripheral == nil {
		// Already disconnected at the transport layer
		if s.State().Phase != tracker.PhaseIdle {
			s.setState(tracker.ConnectionState{Phase: tracker.PhaseIdle})
		}
		return
	}

	s.setState(tracker.ConnectionState{Phase: tracker.PhaseDisconnecting})
	if err := s.peripheral.Disconnect(); err != nil {
		s.log.Warnf("transport disconnect failed: %s", err)
		s.onTransportDisconnected()
	}
	// Otherwise the transport confirms via OnDisconnect
}

// onTransportDisconnected handles any loss of connection, requested or not:
// characteristic references become unresolved, polling stops, state is idle.
func (s *Session) onTransportDisconnected() {
	s.stopPoll()
	s.peripheral = nil
	s.chars = nil

	// Only connection phases settle in idle. A connection torn down
	// because of a fault rests in the error state until the next scan /
	// connect attempt, and a late confirmation must not disturb a
	// recovery already underway.
	switch s.State().Phase {
	case tracker.PhaseConnecting, tracker.PhaseConnected, tracker.PhaseDisconnecting:
		s.setState(tracker.ConnectionState{Phase: tracker.PhaseIdle})
	}
}

func (s *Session) requestEnvironment() {
	ctrl := s.control()
	if ctrl == nil {
		return
	}

	if err := ctrl.Write(nanohr.CmdMeasureEnvironment.Bytes()); err != nil {
		s.failDisconnect(fmt.Errorf("failed to write %s command: %w", nanohr.CmdMeasureEnvironment, err))
		return
	}

	// Response chain: one temperature read, then one humidity read. The
	// humidity read is only issued once the temperature read has completed;
	// the transport forbids overlapping characteristic operations.
	if !s.readTemperature() {
		return
	}
	s.readHumidity()
}

func (s *Session) startIMU() {
	ctrl := s.control()
	if ctrl == nil {
		return
	}

	if err := ctrl.Write(nanohr.CmdStartIMU.Bytes()); err != nil {
		s.failDisconnect(fmt.Errorf("failed to write %s command: %w", nanohr.CmdStartIMU, err))
		return
	}

	// One immediate read, expected to observe the firmware-reset zero, then
	// the periodic poll takes over
	s.readSteps()
	s.startPoll()
}

func (s *Session) stopIMU() {
	s.stopPoll()

	ctrl := s.control()
	if ctrl == nil {
		return
	}
	if err := ctrl.Write(nanohr.CmdStopIMU.Bytes()); err != nil {
		s.failDisconnect(fmt.Errorf("failed to write %s command: %w", nanohr.CmdStopIMU, err))
	}
}

// control returns the resolved control characteristic, or nil when the
// session is not connected (commands are silently dropped then)
func (s *Session) control() Characteristic {
	if s.peripheral == nil {
		return nil
	}
	return s.chars[nanohr.ControlCharUUID]
}

func (s *Session) readTemperature() bool {
	c := s.chars[nanohr.TemperatureCharUUID]
	if s.peripheral == nil || c == nil {
		return false
	}
	data, err := c.Read()
	if err != nil {
		s.log.Warnf("temperature read failed: %s", err)
		return false
	}
	v, err := nanohr.DecodeTemperature(data)
	if err != nil {
		s.log.Warnf("discarding malformed temperature value: %s", err)
		return false
	}
	s.telemetry.SetTemperature(v)
	return true
}

func (s *Session) readHumidity() {
	c := s.chars[nanohr.HumidityCharUUID]
	if s.peripheral == nil || c == nil {
		return
	}
	data, err := c.Read()
	if err != nil {
		s.log.Warnf("humidity read failed: %s", err)
		return
	}
	v, err := nanohr.DecodeHumidity(data)
	if err != nil {
		s.log.Warnf("discarding malformed humidity value: %s", err)
		return
	}
	s.telemetry.SetHumidity(v)
}

func (s *Session) readSteps() {
	c := s.chars[nanohr.StepsCharUUID]
	if s.peripheral == nil || c == nil {
		// The connection is gone; a running poll must not outlive it
		s.stopPoll()
		return
	}
	data, err := c.Read()
	if err != nil {
		s.log.Debugf("step read failed: %s", err)
		return
	}
	v, err := nanohr.DecodeSteps(data)
	if err != nil {
		s.log.Warnf("discarding malformed step value: %s", err)
		return
	}
	s.telemetry.SetSteps(v)
}

// startPoll begins the periodic step poll, replacing any prior loop. At
// most one loop is ever active.
func (s *Session) startPoll() {
	s.stopPoll()

	stop := make(chan struct{})
	s.pollStop = stop

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case s.ops <- func() { s.pollTick(stop) }:
				case <-stop:
					return
				case <-s.done:
					return
				}
			}
		}
	}()
}

// pollTick runs on the loop; ticks of a superseded loop are discarded
func (s *Session) pollTick(stop chan struct{}) {
	if s.pollStop != stop {
		return
	}
	s.readSteps()
}

func (s *Session) stopPoll() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Session) onHeartRateNotify(data []byte) {
	bpm, err := nanohr.DecodeHeartRate(data)
	if err != nil {
		s.log.Warnf("discarding malformed heart rate value: %s", err)
		return
	}
	s.telemetry.SetHeartRate(bpm)
}

func (s *Session) onStepsNotify(data []byte) {
	v, err := nanohr.DecodeSteps(data)
	if err != nil {
		s.log.Warnf("discarding malformed step value: %s", err)
		return
	}
	s.telemetry.SetSteps(v)
}

// fail transitions into the error state. The state machine is the error
// channel: intent callers never see these as returned errors.
func (s *Session) fail(err error) {
	s.log.Errorf("session error: %s", err)
	s.setState(tracker.ConnectionState{Phase: tracker.PhaseError, Err: err.Error()})
}

// failDisconnect is fail for faults on an established connection: in-flight
// resources are torn down first.
func (s *Session) failDisconnect(err error) {
	s.stopPoll()
	if s.peripheral != nil {
		_ = s.peripheral.Disconnect()
		s.peripheral = nil
		s.chars = nil
	}
	s.fail(err)
}

func (s *Session) setState(state tracker.ConnectionState) {
	s.mu.Lock()
	s.state = state
	handler := s.stateHandler
	ch := s.stateChan
	s.mu.Unlock()

	s.log.Debugf("connection state: %s", state)

	// Call handler function, if any
	if handler != nil {
		handler(state)
	}

	// Put state change on channel, if any
	if ch != nil {
		select {
		case ch <- state:
		default:
		}
	}
}
