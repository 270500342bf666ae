//go:build !linux && !darwin && !windows

package ble

import (
	"context"
	"time"

	"github.com/op/go-logging"
)

type Advertisement struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

func newTinygoDevice(opts Options, log *logging.Logger) (Device, error) {
	return nil, ErrBackendUnsupported
}

func Discover(ctx context.Context, window time.Duration) ([]Advertisement, error) {
	return nil, ErrBackendUnsupported
}
