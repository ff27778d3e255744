package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nanohr/nanofit/pkg/api"
	"github.com/nanohr/nanofit/pkg/config"
	"github.com/nanohr/nanofit/pkg/mock"
	"github.com/nanohr/nanofit/pkg/session"
	"github.com/nanohr/nanofit/pkg/store"
	"github.com/nanohr/nanofit/pkg/tracker"
	"github.com/nanohr/nanofit/pkg/workout"
)

type flags struct {
	configPath string
	useMock    bool
	debug      bool
}

var log = logrus.New()

func main() {

	// Parse command line options
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to YAML configuration file")
	flag.BoolVar(&f.useMock, "mock", false, "use a simulated peripheral instead of the Bluetooth adapter")
	flag.BoolVar(&f.debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			log.Fatalf("Failed to load configuration: %s", err)
		}
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	var (
		transport session.Transport
		err       error
	)
	if f.useMock {
		transport = mock.New(
			mock.WithDeviceName(cfg.Device.Name),
		)
	} else {
		if transport, err = session.NewGattTransport(); err != nil {
			log.Fatalf("Failed to initialize Bluetooth transport: %s", err)
		}
	}

	sess := session.New(transport,
		session.WithLogger(tracker.NewDefaultLogger(cfg.LogLevel == "debug")),
		session.WithPollInterval(time.Duration(cfg.Device.StepPollInterval)),
	)

	stateChan := make(chan tracker.ConnectionState, 16)
	sess.SetStateChangeChannel(stateChan)
	go func() {
		for st := range stateChan {
			log.Infof("State change: %s", st)
		}
	}()

	// Auto-connect the configured peripheral as soon as a scan finds it
	sess.SetDeviceFoundHandler(func(dev tracker.DiscoveredDevice) {
		log.Infof("Discovered %s (%s, RSSI %d)", dev.Name, dev.Addr, dev.RSSI)
		if matchesDevice(cfg, dev) {
			sess.Connect(dev.Addr, dev.Name)
		}
	})

	telemetryChan := make(chan tracker.TelemetrySnapshot, 256)
	sess.Telemetry().SetUpdateChannel(telemetryChan)
	go func() {
		for snap := range telemetryChan {
			log.Debugf("Telemetry update: %s", formatSnapshot(snap))
		}
	}()

	var st store.Store = store.NewMemory()
	if cfg.Store.Endpoint != "" {
		st = store.NewHTTP(cfg.Store.Endpoint)
	}

	recorder := workout.NewRecorder(sess.Telemetry(), sess,
		workout.WithUserWeight(cfg.User.WeightKg),
		workout.WithSaver(st, cfg.User.ID),
	)

	srv := api.New(sess, recorder, st, cfg.User.ID, cfg.API.Listen)
	log.Infof("REST API listening on %s", cfg.API.Listen)

	sess.StartScan()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	log.Infof("Got signal, terminating connection to device")
	if err := srv.Shutdown(); err != nil {
		log.Warnf("Failed to shut down REST API: %s", err)
	}
	if err := sess.Close(); err != nil {
		log.Warnf("Failed to close session: %s", err)
	}
}

func matchesDevice(cfg *config.Config, dev tracker.DiscoveredDevice) bool {
	if cfg.Device.Addr != "" {
		return strings.EqualFold(cfg.Device.Addr, dev.Addr)
	}
	return cfg.Device.Name != "" && cfg.Device.Name == dev.Name
}

func formatSnapshot(snap tracker.TelemetrySnapshot) string {
	var parts []string
	if snap.HeartRateBPM != nil {
		parts = append(parts, fmt.Sprintf("heart rate %d bpm", *snap.HeartRateBPM))
	}
	if snap.TemperatureC != nil {
		parts = append(parts, fmt.Sprintf("temperature %.2f C", *snap.TemperatureC))
	}
	if snap.HumidityPercent != nil {
		parts = append(parts, fmt.Sprintf("humidity %.2f %%", *snap.HumidityPercent))
	}
	if snap.CumulativeSteps != nil {
		parts = append(parts, fmt.Sprintf("steps %d", *snap.CumulativeSteps))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}
