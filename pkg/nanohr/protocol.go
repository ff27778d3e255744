// Package nanohr defines the wire protocol spoken by the NanoHR peripheral:
// the GATT service / characteristic layout, the one-byte control commands and
// the codecs for the fixed-size values the device exposes.
package nanohr

import (
	"encoding/binary"
	"fmt"
)

// GATT identifiers of the NanoHR peripheral.
const (
	ServiceUUID = "7a1c0000-9d52-43e1-8a7e-bd3f10c85e01"

	HeartRateCharUUID   = "7a1c0001-9d52-43e1-8a7e-bd3f10c85e01"
	TemperatureCharUUID = "7a1c0002-9d52-43e1-8a7e-bd3f10c85e01"
	HumidityCharUUID    = "7a1c0003-9d52-43e1-8a7e-bd3f10c85e01"
	ControlCharUUID     = "7a1c0004-9d52-43e1-8a7e-bd3f10c85e01"
	StepsCharUUID       = "7a1c0005-9d52-43e1-8a7e-bd3f10c85e01"

	// CCCDUUID is the standard Client Characteristic Configuration
	// Descriptor used to enable notifications.
	CCCDUUID = "2902"
)

// Command is a one-byte instruction written to the control characteristic.
type Command byte

const (

	// CmdMeasureEnvironment triggers a temperature / humidity measurement
	CmdMeasureEnvironment Command = 0x01

	// CmdStartIMU starts the step-counting mode. The firmware resets its
	// internal cumulative step counter to zero on reception.
	CmdStartIMU Command = 0x10

	// CmdStopIMU stops the step-counting mode
	CmdStopIMU Command = 0x11
)

// Bytes returns the wire form of the command
func (c Command) Bytes() []byte {
	return []byte{byte(c)}
}

// String returns a human-readable name for the command
func (c Command) String() string {
	switch c {
	case CmdMeasureEnvironment:
		return "measure-environment"
	case CmdStartIMU:
		return "start-imu"
	case CmdStopIMU:
		return "stop-imu"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(c))
}

// DecodeHeartRate parses a heart rate value: a single unsigned byte in BPM
func DecodeHeartRate(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("heart rate value requires 1 byte, got %d", len(data))
	}
	return int(data[0]), nil
}

// DecodeTemperature parses a temperature value: little-endian signed int16,
// scaled by 100 (raw 1000 = 10.00 degrees C)
func DecodeTemperature(data []byte) (float64, error) {
	return decodeCenti(data, "temperature")
}

// DecodeHumidity parses a relative humidity value: little-endian signed
// int16, scaled by 100 (raw 5525 = 55.25 %RH)
func DecodeHumidity(data []byte) (float64, error) {
	return decodeCenti(data, "humidity")
}

// DecodeSteps parses a cumulative step count: little-endian unsigned int32
func DecodeSteps(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("steps value requires 4 bytes, got %d", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

func decodeCenti(data []byte, what string) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%s value requires 2 bytes, got %d", what, len(data))
	}
	raw := int16(binary.LittleEndian.Uint16(data))
	return float64(raw) / 100., nil
}
