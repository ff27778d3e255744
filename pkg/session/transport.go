package session

import (
	"errors"

	"github.com/nanohr/nanofit/pkg/tracker"
)

// Characteristic denotes a resolved GATT characteristic on the peripheral
type Characteristic interface {

	// Read reads the current characteristic value
	Read() ([]byte, error)

	// Write writes data to the characteristic
	Write(data []byte) error

	// Subscribe enables notifications and registers a value-changed callback
	Subscribe(fn func(data []byte)) error
}

// Peripheral denotes an established connection to a peripheral
type Peripheral interface {

	// DiscoverCharacteristics resolves the given characteristics within the
	// given service, keyed by characteristic UUID
	DiscoverCharacteristics(serviceUUID string, charUUIDs []string) (map[string]Characteristic, error)

	// OnDisconnect registers a callback fired when the transport reports
	// loss of the connection (requested or not)
	OnDisconnect(fn func())

	// Disconnect requests a transport-level disconnect
	Disconnect() error
}

// Transport abstracts the BLE stack underneath the peripheral session
type Transport interface {

	// Enabled reports whether the underlying adapter is powered on
	Enabled() bool

	// StartScan begins scanning for peripherals advertising the given
	// service, invoking found for every advertisement seen
	StartScan(serviceUUID string, found func(dev tracker.DiscoveredDevice)) error

	// StopScan halts an active scan; calling it without one is harmless
	StopScan() error

	// Connect establishes a connection to the peripheral with the given
	// address, blocking until the transport confirms or fails
	Connect(addr string) (Peripheral, error)
}

// Gate answers the permission / adapter preconditions checked before any
// transport operation. A false answer aborts the operation, never retries.
type Gate interface {

	// HasScanPermission reports whether scanning is permitted
	HasScanPermission() bool

	// HasConnectPermission reports whether connecting is permitted
	HasConnectPermission() bool

	// AdapterEnabled reports whether the adapter is present and powered
	AdapterEnabled() bool
}

// OpenGate grants all permissions and delegates the adapter query to the
// transport. Platforms without a runtime permission model use this.
type OpenGate struct {
	Transport Transport
}

// HasScanPermission always grants scanning
func (g OpenGate) HasScanPermission() bool { return true }

// HasConnectPermission always grants connecting
func (g OpenGate) HasConnectPermission() bool { return true }

// AdapterEnabled reports the transport's adapter power state
func (g OpenGate) AdapterEnabled() bool { return g.Transport.Enabled() }

// Connection-layer fault taxonomy. These are never returned to intent
// callers; they surface as the error phase of the connection state.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	ErrServiceNotFound    = errors.New("peripheral does not expose the NanoHR service")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrNotConnected       = errors.New("not connected")
)
