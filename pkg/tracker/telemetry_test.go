package tracker

import (
	"testing"
)

func TestTelemetryStartsEmpty(t *testing.T) {
	snap := NewTelemetry().Snapshot()
	if snap.HeartRateBPM != nil || snap.TemperatureC != nil ||
		snap.HumidityPercent != nil || snap.CumulativeSteps != nil {
		t.Errorf("fresh telemetry should have no measurements, got %+v", snap)
	}
}

func TestTelemetryLastValueWins(t *testing.T) {
	tel := NewTelemetry()

	tel.SetHeartRate(70)
	tel.SetHeartRate(85)
	tel.SetSteps(100)
	tel.SetSteps(42)

	snap := tel.Snapshot()
	if snap.HeartRateBPM == nil || *snap.HeartRateBPM != 85 {
		t.Errorf("HeartRateBPM = %v, want 85", snap.HeartRateBPM)
	}
	if snap.CumulativeSteps == nil || *snap.CumulativeSteps != 42 {
		t.Errorf("CumulativeSteps = %v, want 42", snap.CumulativeSteps)
	}
	if snap.TemperatureC != nil {
		t.Errorf("TemperatureC should remain unset, got %v", *snap.TemperatureC)
	}
}

func TestTelemetrySnapshotIsCopy(t *testing.T) {
	tel := NewTelemetry()
	tel.SetTemperature(21.5)

	snap := tel.Snapshot()
	*snap.TemperatureC = 99.

	if got := *tel.Snapshot().TemperatureC; got != 21.5 {
		t.Errorf("mutating a snapshot leaked into the store: %v", got)
	}
}

func TestTelemetryUpdateFanOut(t *testing.T) {
	tel := NewTelemetry()

	var fromHandler []TelemetrySnapshot
	tel.SetUpdateHandler(func(snap TelemetrySnapshot) {
		fromHandler = append(fromHandler, snap)
	})

	ch := make(chan TelemetrySnapshot, 1)
	tel.SetUpdateChannel(ch)

	tel.SetHumidity(55.25)
	if len(fromHandler) != 1 || *fromHandler[0].HumidityPercent != 55.25 {
		t.Fatalf("handler fan-out failed: %+v", fromHandler)
	}

	select {
	case snap := <-ch:
		if *snap.HumidityPercent != 55.25 {
			t.Errorf("channel snapshot = %v, want 55.25", *snap.HumidityPercent)
		}
	default:
		t.Error("no snapshot on update channel")
	}

	// A full channel must not block the writer
	tel.SetHumidity(60.)
	tel.SetHumidity(61.)
}

func TestTelemetryReset(t *testing.T) {
	tel := NewTelemetry()
	tel.SetHeartRate(80)
	tel.SetSteps(1000)

	tel.Reset()

	snap := tel.Snapshot()
	if snap.HeartRateBPM != nil || snap.CumulativeSteps != nil {
		t.Errorf("Reset() left measurements behind: %+v", snap)
	}
}
