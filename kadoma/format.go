package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/knob"
	. "github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/daemon/control"
)

func onOff(on bool) string {
	if on {
		return Green("ON")
	}
	return Yellow("OFF")
}

func line(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s %s\n", Bold(fmt.Sprintf("%-24s", name+":")), value)
}

func degrees(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d°C", *v)
}

func formatStatus(status knob.Status) string {
	var b strings.Builder
	if status.PowerState != nil {
		line(&b, knob.POWER_STATE, onOff(*status.PowerState))
	}
	if status.OperationMode != nil {
		line(&b, knob.OPERATION_MODE, status.OperationMode.String())
	}
	if status.FanSpeed != nil {
		line(&b, knob.FAN_SPEED, fmt.Sprintf("cooling %s, heating %s", status.FanSpeed.Cooling, status.FanSpeed.Heating))
	}
	if status.SetPoint != nil {
		line(&b, knob.SET_POINT, fmt.Sprintf("cooling %d°C, heating %d°C",
			status.SetPoint["cooling_set_point"], status.SetPoint["heating_set_point"]))
	}
	if status.Sensors != nil {
		line(&b, knob.SENSORS, fmt.Sprintf("indoor %s, outdoor %s", degrees(status.Sensors.Indoor), degrees(status.Sensors.Outdoor)))
	}
	if status.CleanFilterIndicator != nil {
		value := Green("clean")
		if *status.CleanFilterIndicator {
			value = Red("needs cleaning")
		}
		line(&b, knob.CLEAN_FILTER_INDICATOR, value)
	}
	for _, name := range sortedKeys(status.Errors) {
		line(&b, name, Red(status.Errors[name]))
	}
	if !status.UpdatedAt.IsZero() {
		line(&b, "updated_at", status.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatValues(values knob.Values) string {
	var b strings.Builder
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		line(&b, name, fmt.Sprintf("%d", values[name]))
	}
	return b.String()
}

func formatInfo(info control.InfoResponse) string {
	var b strings.Builder
	device := info.Device
	for _, field := range []struct{ name, value string }{
		{"address", device.Address},
		{"name", device.Name},
		{"manufacturer", device.Manufacturer},
		{"model", device.Model},
		{"serial_number", device.SerialNumber},
		{"hardware_revision", device.HardwareRevision},
		{"firmware_revision", device.FirmwareRevision},
		{"software_revision", device.SoftwareRevision},
	} {
		if field.value != "" {
			line(&b, field.name, field.value)
		}
	}
	line(&b, "daemon_version", info.Daemon.Version)
	line(&b, "daemon_session", info.Daemon.Session)
	line(&b, "connected", onOff(info.Daemon.Connected))
	if info.Daemon.Connected {
		line(&b, "mtu", fmt.Sprintf("%d", info.Daemon.MTU))
		line(&b, "pending", fmt.Sprintf("%d", info.Daemon.Pending))
	}
	return b.String()
}

func formatAdvertisements(found []ble.Advertisement) string {
	var b strings.Builder
	sort.Slice(found, func(i, j int) bool { return found[i].RSSI > found[j].RSSI })
	for _, ad := range found {
		name := ad.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "%s  %4d dBm  %s\n", Cyan(ad.Address), ad.RSSI, name)
	}
	return b.String()
}

func sortedKeys(m map[string]string) (keys []string) {
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return
}
