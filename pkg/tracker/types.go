// Package tracker holds the types shared between the NanoHR peripheral
// session and its consumers: the connection state variant, discovered
// devices and the live telemetry snapshot / sink.
package tracker

import "fmt"

// Phase denotes a connection phase of the peripheral session
type Phase int

const (

	// PhaseIdle is active while no scan or connection exists
	PhaseIdle Phase = iota

	// PhaseScanning is active while scanning for the peripheral
	PhaseScanning

	// PhaseConnecting is active while a connection attempt is in flight
	PhaseConnecting

	// PhaseConnected is active while being connected to the peripheral
	PhaseConnected

	// PhaseDisconnecting is active while a disconnect request is in flight
	PhaseDisconnecting

	// PhaseError is active after a failed operation, until the next
	// scan / connect attempt re-enters the normal flow
	PhaseError
)

// String returns a human-readable phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseError:
		return "error"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ConnectionState denotes the externally observable state of the peripheral
// session. Exactly one state is live at a time. DeviceName / DeviceAddr are
// populated for the connecting and connected phases, Err for the error phase.
type ConnectionState struct {
	Phase      Phase
	DeviceName string
	DeviceAddr string
	Err        string
}

// String returns a human-readable state description
func (s ConnectionState) String() string {
	switch s.Phase {
	case PhaseConnecting, PhaseConnected:
		if s.DeviceName != "" {
			return fmt.Sprintf("%s (%s/%s)", s.Phase, s.DeviceName, s.DeviceAddr)
		}
		return fmt.Sprintf("%s (%s)", s.Phase, s.DeviceAddr)
	case PhaseError:
		return fmt.Sprintf("error: %s", s.Err)
	}
	return s.Phase.String()
}

// DiscoveredDevice denotes a peripheral seen during a scan
type DiscoveredDevice struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
	RSSI int    `json:"rssi"`
}
