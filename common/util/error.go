package util

import (
	"fmt"
)

var ErrConnectingToDaemon = fmt.Errorf("Could not connect to kadoma daemon. Make sure it is running by typing \"kadomad\".")
var ErrDeviceNotConfigured = fmt.Errorf("No device address configured. Run \"kadoma discover\" and set \"address\" in ~/.kadoma/config.toml or pass --address.")
var ErrDeviceTimedOut = fmt.Errorf("The appliance did not answer in time. Make sure it is powered and in range.")
var ErrDeviceNotConnected = fmt.Errorf("The daemon is not connected to the appliance yet.")
var ErrUnknownKnob = fmt.Errorf("Unknown knob. Run \"kadoma status\" to list them.")
