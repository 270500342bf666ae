//go:build linux || darwin || windows

package ble

import (
	"errors"
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestOpenLinkClosesUnresolvedLink(t *testing.T) {
	missing := errors.New("no write characteristic")
	disconnects := 0
	_, err := openLink(
		func() (bluetooth.Device, error) { return bluetooth.Device{}, nil },
		func(bluetooth.Device) error { return missing },
		func(bluetooth.Device) error {
			disconnects++
			return nil
		},
	)
	if !errors.Is(err, missing) {
		t.Fatal("expected resolve error", err)
	}
	if disconnects != 1 {
		t.Fatal("link left open", disconnects)
	}
}

func TestOpenLinkKeepsResolvedLink(t *testing.T) {
	disconnects := 0
	_, err := openLink(
		func() (bluetooth.Device, error) { return bluetooth.Device{}, nil },
		func(bluetooth.Device) error { return nil },
		func(bluetooth.Device) error {
			disconnects++
			return nil
		},
	)
	if err != nil || disconnects != 0 {
		t.Fatal(err, disconnects)
	}
}

func TestOpenLinkConnectFailure(t *testing.T) {
	refused := errors.New("refused")
	resolved, disconnects := 0, 0
	_, err := openLink(
		func() (bluetooth.Device, error) { return bluetooth.Device{}, refused },
		func(bluetooth.Device) error {
			resolved++
			return nil
		},
		func(bluetooth.Device) error {
			disconnects++
			return nil
		},
	)
	if !errors.Is(err, refused) || resolved != 0 || disconnects != 0 {
		t.Fatal(err, resolved, disconnects)
	}
}
