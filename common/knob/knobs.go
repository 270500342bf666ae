package knob

import (
	"fmt"
	"math"
	"strings"
)

const (
	POWER_STATE              = "power_state"
	OPERATION_MODE           = "operation_mode"
	FAN_SPEED                = "fan_speed"
	SET_POINT                = "set_point"
	SENSORS                  = "sensors"
	CLEAN_FILTER_INDICATOR   = "clean_filter_indicator"
	CLEAN_FILTER_TIMER_RESET = "clean_filter_timer_reset"
)

var PowerStateKnob = &Knob{
	Name:      POWER_STATE,
	QueryCmd:  0x0020,
	UpdateCmd: 0x4020,
	Fields:    []Field{{"state", 0x20, 0x00}},
}

var OperationModeKnob = &Knob{
	Name:      OPERATION_MODE,
	QueryCmd:  0x0030,
	UpdateCmd: 0x4030,
	Fields:    []Field{{"mode", 0x20, uint64(AUTO)}},
}

var FanSpeedKnob = &Knob{
	Name:      FAN_SPEED,
	QueryCmd:  0x0050,
	UpdateCmd: 0x4050,
	Fields: []Field{
		{"cooling", 0x20, uint64(FAN_AUTO)},
		{"heating", 0x21, uint64(FAN_AUTO)},
	},
}

var SetPointKnob = &Knob{
	Name:      SET_POINT,
	QueryCmd:  0x0040,
	UpdateCmd: 0x4040,
	Fields: []Field{
		{"cooling_set_point", 0x20, 0},
		{"heating_set_point", 0x21, 0},
		{"range_enabled", 0x30, 0},
		{"mode", 0x31, 0},
		{"minimum_differential", 0x32, 0},
		{"min_cooling_lowerlimit", 0xA0, 0},
		{"min_heating_lowerlimit", 0xA1, 0},
		{"cooling_lowerlimit", 0xA2, 0},
		{"heating_lowerlimit", 0xA3, 0},
		{"cooling_lowerlimit_symbol", 0xA4, 0},
		{"heating_lowerlimit_symbol", 0xA5, 0},
		{"max_cooling_upperlimit", 0xB0, 0},
		{"max_heating_upperlimit", 0xB1, 0},
		{"cooling_upperlimit", 0xB2, 0},
		{"heating_upperlimit", 0xB3, 0},
		{"cooling_upperlimit_symbol", 0xB4, 0},
		{"heating_upperlimit_symbol", 0xB5, 0},
	},
}

var SensorsKnob = &Knob{
	Name:      SENSORS,
	QueryCmd:  0x0110,
	UpdateCmd: NOT_IMPLEMENTED,
	Fields: []Field{
		{"indoor", 0x40, SENSOR_UNKNOWN},
		{"outdoor", 0x41, SENSOR_UNKNOWN},
	},
}

var CleanFilterIndicatorKnob = &Knob{
	Name:      CLEAN_FILTER_INDICATOR,
	QueryCmd:  0x0100,
	UpdateCmd: NOT_IMPLEMENTED,
	Fields:    []Field{{"clean_filter_indicator", 0x62, 0}},
}

var CleanFilterTimerResetKnob = &Knob{
	Name:      CLEAN_FILTER_TIMER_RESET,
	QueryCmd:  NOT_IMPLEMENTED,
	UpdateCmd: 0x4220,
	Fields:    []Field{{"clean_filter_timer_reset", 0xFE, 0x01}},
}

//	status refresh order
var Knobs = []*Knob{
	CleanFilterIndicatorKnob,
	FanSpeedKnob,
	OperationModeKnob,
	PowerStateKnob,
	SensorsKnob,
	SetPointKnob,
	CleanFilterTimerResetKnob,
}

func ByName(name string) (*Knob, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for _, k := range Knobs {
		if k.Name == name {
			return k, true
		}
	}
	return nil, false
}

type OperationMode uint64

const (
	FAN OperationMode = iota
	DRY
	AUTO
	COOL
	HEAT
	VENTILATION
)

var operationModeNames = []string{"FAN", "DRY", "AUTO", "COOL", "HEAT", "VENTILATION"}

func (m OperationMode) String() string {
	if int(m) < len(operationModeNames) {
		return operationModeNames[m]
	}
	return fmt.Sprintf("OperationMode(%d)", uint64(m))
}

func (m OperationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *OperationMode) UnmarshalText(text []byte) (err error) {
	*m, err = ParseOperationMode(string(text))
	return
}

func ParseOperationMode(name string) (OperationMode, error) {
	for i, known := range operationModeNames {
		if strings.EqualFold(name, known) {
			return OperationMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operation mode %q, expected one of %s", name, strings.Join(operationModeNames, ", "))
}

type FanSpeed uint64

const (
	FAN_AUTO FanSpeed = iota
	FAN_LOW
	FAN_MID_LOW
	FAN_MID
	FAN_MID_HIGH
	FAN_HIGH
)

var fanSpeedNames = []string{"AUTO", "LOW", "MID_LOW", "MID", "MID_HIGH", "HIGH"}

func (s FanSpeed) String() string {
	if int(s) < len(fanSpeedNames) {
		return fanSpeedNames[s]
	}
	return fmt.Sprintf("FanSpeed(%d)", uint64(s))
}

func (s FanSpeed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FanSpeed) UnmarshalText(text []byte) (err error) {
	*s, err = ParseFanSpeed(string(text))
	return
}

func ParseFanSpeed(name string) (FanSpeed, error) {
	name = strings.ReplaceAll(name, "-", "_")
	for i, known := range fanSpeedNames {
		if strings.EqualFold(name, known) {
			return FanSpeed(i), nil
		}
	}
	return 0, fmt.Errorf("unknown fan speed %q, expected one of %s", name, strings.Join(fanSpeedNames, ", "))
}

//	sensor reading reported when no probe is fitted
const SENSOR_UNKNOWN = 0xFF

//	temperatures travel as 1/128 degree units
const SET_POINT_SCALE = 128.0

//	set point fields carried in 1/128 degree units, two bytes signed
var scaledSetPointFields = map[string]bool{
	"cooling_set_point":  true,
	"heating_set_point":  true,
	"cooling_lowerlimit": true,
	"heating_lowerlimit": true,
	"cooling_upperlimit": true,
	"heating_upperlimit": true,
}

func SetPointFromDevice(value uint64) int {
	return int(math.Round(float64(int16(uint16(value))) / SET_POINT_SCALE))
}

func SetPointToDevice(degrees float64) uint64 {
	return uint64(uint16(int16(math.Round(degrees * SET_POINT_SCALE))))
}
