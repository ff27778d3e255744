package session

import (
	"time"

	"github.com/nanohr/nanofit/pkg/tracker"
)

// WithLogger sets the logger used by the session
func WithLogger(logger tracker.Logger) func(*Session) {
	return func(s *Session) {
		s.log = logger
	}
}

// WithGate sets the permission / adapter gate consulted before transport
// operations
func WithGate(gate Gate) func(*Session) {
	return func(s *Session) {
		s.gate = gate
	}
}

// WithTelemetry sets an externally owned telemetry store
func WithTelemetry(telemetry *tracker.Telemetry) func(*Session) {
	return func(s *Session) {
		s.telemetry = telemetry
	}
}

// WithPollInterval overrides the step poll interval (1s per the NanoHR
// protocol; tests shorten it)
func WithPollInterval(interval time.Duration) func(*Session) {
	return func(s *Session) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}
