package nanohr

import (
	"testing"
)

func TestDecodeHeartRate(t *testing.T) {
	for _, c := range []struct {
		data []byte
		want int
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x48}, 72},
		{[]byte{0xff}, 255},
	} {
		got, err := DecodeHeartRate(c.data)
		if err != nil {
			t.Fatalf("DecodeHeartRate(%v) error = %v", c.data, err)
		}
		if got != c.want {
			t.Errorf("DecodeHeartRate(%v) = %d, want %d", c.data, got, c.want)
		}
	}

	if _, err := DecodeHeartRate(nil); err == nil {
		t.Error("DecodeHeartRate(nil) should fail")
	}
}

func TestDecodeTemperature(t *testing.T) {
	for _, c := range []struct {
		data []byte
		want float64
	}{
		{[]byte{0xe8, 0x03}, 10.},    // little-endian 1000
		{[]byte{0x39, 0x09}, 23.61},  // 2361
		{[]byte{0x18, 0xfc}, -10.},   // -1000, sub-zero readings are valid
		{[]byte{0x00, 0x00}, 0.},
	} {
		got, err := DecodeTemperature(c.data)
		if err != nil {
			t.Fatalf("DecodeTemperature(%v) error = %v", c.data, err)
		}
		if got != c.want {
			t.Errorf("DecodeTemperature(%v) = %v, want %v", c.data, got, c.want)
		}
	}

	if _, err := DecodeTemperature([]byte{0x01}); err == nil {
		t.Error("DecodeTemperature with a short buffer should fail")
	}
}

func TestDecodeHumidity(t *testing.T) {
	got, err := DecodeHumidity([]byte{0x95, 0x15}) // 5525
	if err != nil {
		t.Fatalf("DecodeHumidity() error = %v", err)
	}
	if got != 55.25 {
		t.Errorf("DecodeHumidity() = %v, want 55.25", got)
	}
}

func TestDecodeSteps(t *testing.T) {
	for _, c := range []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x05, 0x00, 0x00, 0x00}, 5},
		{[]byte{0x00, 0x00, 0x00, 0x00}, 0},
		{[]byte{0xa0, 0x86, 0x01, 0x00}, 100000},
		{[]byte{0xff, 0xff, 0xff, 0xff}, 4294967295},
	} {
		got, err := DecodeSteps(c.data)
		if err != nil {
			t.Fatalf("DecodeSteps(%v) error = %v", c.data, err)
		}
		if got != c.want {
			t.Errorf("DecodeSteps(%v) = %d, want %d", c.data, got, c.want)
		}
	}

	if _, err := DecodeSteps([]byte{0x05, 0x00}); err == nil {
		t.Error("DecodeSteps with a short buffer should fail")
	}
}

func TestCommandBytes(t *testing.T) {
	for _, c := range []struct {
		cmd  Command
		want byte
	}{
		{CmdMeasureEnvironment, 0x01},
		{CmdStartIMU, 0x10},
		{CmdStopIMU, 0x11},
	} {
		b := c.cmd.Bytes()
		if len(b) != 1 || b[0] != c.want {
			t.Errorf("%s.Bytes() = %v, want [0x%02x]", c.cmd, b, c.want)
		}
	}
}
