package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nanohr/nanofit/pkg/comfort"
	"github.com/nanohr/nanofit/pkg/mock"
	"github.com/nanohr/nanofit/pkg/session"
	"github.com/nanohr/nanofit/pkg/tracker"
)

type flags struct {
	name    string
	addr    string
	useMock bool

	scanOnly    bool
	measureEnv  bool
	readSteps   bool
	waitTimeout time.Duration
}

var log = logrus.New()

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {

	// Parse command line options
	var f flags
	flag.StringVar(&f.name, "name", "NanoHR", "name of remote peripheral")
	flag.StringVar(&f.addr, "addr", "", "address of remote peripheral (MAC on Linux, UUID on OS X)")
	flag.BoolVar(&f.useMock, "mock", false, "use a simulated peripheral instead of the Bluetooth adapter")

	flag.BoolVar(&f.scanOnly, "scan", false, "list advertising peripherals, then exit")
	flag.BoolVar(&f.measureEnv, "env", false, "measure temperature / humidity")
	flag.BoolVar(&f.readSteps, "steps", false, "read the cumulative step counter")
	flag.DurationVar(&f.waitTimeout, "timeout", 30*time.Second, "scan / connect timeout")
	flag.Parse()

	var transport session.Transport
	if f.useMock {
		transport = mock.New(mock.WithDeviceName(f.name))
	} else {
		if transport, err = session.NewGattTransport(); err != nil {
			return fmt.Errorf("failed to initialize Bluetooth transport: %s", err)
		}
	}

	sess := session.New(transport)
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if f.scanOnly {
		return scan(sess, f.waitTimeout)
	}

	found := make(chan tracker.DiscoveredDevice, 16)
	sess.SetDeviceFoundHandler(func(dev tracker.DiscoveredDevice) {
		select {
		case found <- dev:
		default:
		}
	})
	sess.StartScan()

	deadline := time.After(f.waitTimeout)
	for connected := false; !connected; {
		select {
		case dev := <-found:
			if matches(f, dev) {
				sess.Connect(dev.Addr, dev.Name)
			}
		case <-deadline:
			return errors.New("timed out waiting for peripheral")
		case <-time.After(100 * time.Millisecond):
			state := sess.State()
			if state.Phase == tracker.PhaseError {
				return errors.New(state.Err)
			}
			connected = state.Phase == tracker.PhaseConnected
		}
	}

	if f.measureEnv {
		if err := measureEnvironment(sess, f.waitTimeout); err != nil {
			return err
		}
	}
	if f.readSteps {
		if err := readSteps(sess, f.waitTimeout); err != nil {
			return err
		}
	}

	return nil
}

func scan(sess *session.Session, timeout time.Duration) error {

	sess.SetDeviceFoundHandler(func(dev tracker.DiscoveredDevice) {
		fmt.Printf("%-24s %-20s RSSI %d\n", dev.Name, dev.Addr, dev.RSSI)
	})

	sess.StartScan()
	time.Sleep(timeout)
	sess.StopScan()

	return nil
}

func measureEnvironment(sess *session.Session, timeout time.Duration) error {

	sess.RequestEnvironmentMeasurement()

	snap, err := waitTelemetry(sess, timeout, func(s tracker.TelemetrySnapshot) bool {
		return s.TemperatureC != nil && s.HumidityPercent != nil
	})
	if err != nil {
		return fmt.Errorf("failed to measure environment: %s", err)
	}

	fmt.Printf("Temperature: %.2f C\nHumidity:    %.2f %%\nSuitability: %s\n",
		*snap.TemperatureC, *snap.HumidityPercent,
		comfort.Classify(*snap.TemperatureC, *snap.HumidityPercent))
	return nil
}

func readSteps(sess *session.Session, timeout time.Duration) error {

	sess.StartIMUSession()
	defer sess.StopIMUSession()

	snap, err := waitTelemetry(sess, timeout, func(s tracker.TelemetrySnapshot) bool {
		return s.CumulativeSteps != nil
	})
	if err != nil {
		return fmt.Errorf("failed to read step counter: %s", err)
	}

	fmt.Printf("Steps: %d\n", *snap.CumulativeSteps)
	return nil
}

func waitTelemetry(sess *session.Session, timeout time.Duration, ready func(tracker.TelemetrySnapshot) bool) (tracker.TelemetrySnapshot, error) {

	deadline := time.After(timeout)
	for {
		snap := sess.Telemetry().Snapshot()
		if ready(snap) {
			return snap, nil
		}

		select {
		case <-deadline:
			return snap, errors.New("timed out waiting for measurement")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func matches(f flags, dev tracker.DiscoveredDevice) bool {
	if f.addr != "" {
		return strings.EqualFold(f.addr, dev.Addr)
	}
	return f.name != "" && f.name == dev.Name
}
