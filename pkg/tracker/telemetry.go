package tracker

import "sync"

// TelemetrySnapshot denotes the most recent value of every measurement the
// peripheral provides. A nil field means no measurement has arrived yet.
type TelemetrySnapshot struct {
	HeartRateBPM    *int
	TemperatureC    *float64
	HumidityPercent *float64
	CumulativeSteps *uint32
}

// Telemetry is the last-value-wins store for live measurements. It is
// written by the peripheral session as notifications and read responses
// arrive and is safe for concurrent readers.
type Telemetry struct {
	mu   sync.RWMutex
	snap TelemetrySnapshot

	updateHandler func(snap TelemetrySnapshot)
	updateChan    chan TelemetrySnapshot
}

// NewTelemetry instantiates an empty telemetry store
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

// Snapshot returns a copy of the current values
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := t.snap
	if t.snap.HeartRateBPM != nil {
		v := *t.snap.HeartRateBPM
		snap.HeartRateBPM = &v
	}
	if t.snap.TemperatureC != nil {
		v := *t.snap.TemperatureC
		snap.TemperatureC = &v
	}
	if t.snap.HumidityPercent != nil {
		v := *t.snap.HumidityPercent
		snap.HumidityPercent = &v
	}
	if t.snap.CumulativeSteps != nil {
		v := *t.snap.CumulativeSteps
		snap.CumulativeSteps = &v
	}
	return snap
}

// SetUpdateHandler defines a handler function that is called upon every update
func (t *Telemetry) SetUpdateHandler(fn func(snap TelemetrySnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateHandler = fn
}

// SetUpdateChannel defines a channel that receives a snapshot upon every
// update. Sends are non-blocking; a full channel drops the update.
func (t *Telemetry) SetUpdateChannel(ch chan TelemetrySnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateChan = ch
}

// SetHeartRate stores a heart rate measurement
func (t *Telemetry) SetHeartRate(bpm int) {
	t.update(func(s *TelemetrySnapshot) { s.HeartRateBPM = &bpm })
}

// SetTemperature stores a temperature measurement
func (t *Telemetry) SetTemperature(degC float64) {
	t.update(func(s *TelemetrySnapshot) { s.TemperatureC = &degC })
}

// SetHumidity stores a relative humidity measurement
func (t *Telemetry) SetHumidity(pct float64) {
	t.update(func(s *TelemetrySnapshot) { s.HumidityPercent = &pct })
}

// SetSteps stores a cumulative step count
func (t *Telemetry) SetSteps(steps uint32) {
	t.update(func(s *TelemetrySnapshot) { s.CumulativeSteps = &steps })
}

// Reset clears all measurements, e.g. after a connection loss
func (t *Telemetry) Reset() {
	t.mu.Lock()
	t.snap = TelemetrySnapshot{}
	t.mu.Unlock()
}

func (t *Telemetry) update(mutate func(s *TelemetrySnapshot)) {
	t.mu.Lock()
	mutate(&t.snap)
	handler := t.updateHandler
	ch := t.updateChan
	snap := t.snap
	t.mu.Unlock()

	// Call handler function, if any
	if handler != nil {
		handler(snap)
	}

	// Put snapshot on channel, if any
	if ch != nil {
		select {
		case ch <- snap:
		default:
		}
	}
}
