//go:build !linux

package ble

import (
	"github.com/op/go-logging"
)

func newBluezDevice(opts Options, log *logging.Logger) (Device, error) {
	return nil, ErrBackendUnsupported
}

func ForceDisconnect(adapter, address string) error {
	return ErrBackendUnsupported
}
