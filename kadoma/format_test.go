package main

import (
	"strings"
	"testing"
	"time"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/knob"
	"github.com/ldotlopez/kadoma/daemon/control"
)

func TestFormatStatus(t *testing.T) {
	on := true
	dirty := false
	mode := knob.HEAT
	indoor := 21
	status := knob.Status{
		PowerState:           &on,
		OperationMode:        &mode,
		FanSpeed:             &knob.FanSpeeds{Cooling: knob.FAN_AUTO, Heating: knob.FAN_MID_HIGH},
		SetPoint:             map[string]int{"cooling_set_point": 25, "heating_set_point": 22},
		Sensors:              &knob.Sensors{Indoor: &indoor},
		CleanFilterIndicator: &dirty,
		Errors:               map[string]string{"zz_knob": "timed out"},
		UpdatedAt:            time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
	out := formatStatus(status)
	for _, expected := range []string{
		"ON",
		"HEAT",
		"cooling AUTO, heating MID_HIGH",
		"cooling 25°C, heating 22°C",
		"indoor 21°C, outdoor unknown",
		"clean",
		"timed out",
		"2024-05-01 12:30:00",
	} {
		if !strings.Contains(out, expected) {
			t.Fatalf("missing %q in\n%s", expected, out)
		}
	}
	if strings.Count(out, "\n") != 8 {
		t.Fatal("expected one line per field", out)
	}
}

func TestFormatStatusPartial(t *testing.T) {
	off := false
	out := formatStatus(knob.Status{PowerState: &off})
	if !strings.Contains(out, "OFF") || strings.Count(out, "\n") != 1 {
		t.Fatal(out)
	}
	if strings.Contains(out, "updated_at") {
		t.Fatal("zero time should be omitted")
	}
}

func TestFormatValuesSorted(t *testing.T) {
	out := formatValues(knob.Values{"heating": 2, "cooling": 5})
	cooling := strings.Index(out, "cooling")
	heating := strings.Index(out, "heating")
	if cooling < 0 || heating < 0 || cooling > heating {
		t.Fatal(out)
	}
}

func TestFormatInfo(t *testing.T) {
	info := control.InfoResponse{
		Device: ble.Info{Address: "AA:BB:CC:DD:EE:FF", Model: "BRC1H519W"},
		Daemon: control.DaemonInfo{Version: "0.4.0", Session: "abc", Connected: false},
	}
	out := formatInfo(info)
	if !strings.Contains(out, "BRC1H519W") || !strings.Contains(out, "AA:BB:CC:DD:EE:FF") {
		t.Fatal(out)
	}
	if strings.Contains(out, "firmware_revision") || strings.Contains(out, "mtu") {
		t.Fatal("empty fields should be omitted", out)
	}
}

func TestFormatAdvertisementsByRSSI(t *testing.T) {
	out := formatAdvertisements([]ble.Advertisement{
		{Address: "11:11:11:11:11:11", RSSI: -90},
		{Address: "22:22:22:22:22:22", Name: "Madoka", RSSI: -40},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatal(out)
	}
	if !strings.Contains(lines[0], "22:22:22:22:22:22") || !strings.Contains(lines[0], "Madoka") {
		t.Fatal("strongest signal first", out)
	}
	if !strings.HasSuffix(lines[1], "-") {
		t.Fatal("unnamed device", lines[1])
	}
}

func TestParseOnOff(t *testing.T) {
	for arg, expected := range map[string]bool{"on": true, "OFF": false, "1": true, "false": false} {
		on, err := parseOnOff(arg)
		if err != nil || on != expected {
			t.Fatal(arg, on, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClampSetPoint(t *testing.T) {
	for in, expected := range map[int]int{-5: 0, 0: 0, 22: 22, 30: 30, 45: 30} {
		if got := clampSetPoint(in); got != expected {
			t.Fatal(in, got)
		}
	}
}
