package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/op/go-logging"
	"github.com/satori/go.uuid"

	"github.com/ldotlopez/kadoma/common/config"
)

//	ATT default when nothing better was negotiated
const DEFAULT_MTU = 23

var ErrNotConnected = errors.New("ble device not connected")
var ErrCharacteristicNotFound = errors.New("gatt characteristic not found")
var ErrBackendUnsupported = errors.New("ble backend not supported on this platform")

type Info struct {
	Address          string `json:"address"`
	Name             string `json:"name,omitempty"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	Model            string `json:"model,omitempty"`
	SerialNumber     string `json:"serial_number,omitempty"`
	HardwareRevision string `json:"hardware_revision,omitempty"`
	FirmwareRevision string `json:"firmware_revision,omitempty"`
	SoftwareRevision string `json:"software_revision,omitempty"`
}

//	field setters for the Device Information Service characteristics
func infoFields(info *Info) map[uuid.UUID]*string {
	return map[uuid.UUID]*string{
		MANUFACTURER_NAME_UUID: &info.Manufacturer,
		MODEL_NUMBER_UUID:      &info.Model,
		SERIAL_NUMBER_UUID:     &info.SerialNumber,
		HARDWARE_REVISION_UUID: &info.HardwareRevision,
		FIRMWARE_REVISION_UUID: &info.FirmwareRevision,
		SOFTWARE_REVISION_UUID: &info.SoftwareRevision,
	}
}

func infoString(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}

//	Device is one GATT connection to the appliance. Write, Subscribe,
//	Unsubscribe and MTU form the packet transport's link.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(chunk []byte) error
	Subscribe(handler func(chunk []byte)) error
	Unsubscribe() error
	MTU() (int, error)
	ReadInfo(ctx context.Context) (Info, error)
	Address() string
}

type Options struct {
	Address        string
	Adapter        string
	ServiceUUID    uuid.UUID
	NotifyUUID     uuid.UUID
	WriteUUID      uuid.UUID
	ConnectTimeout time.Duration
}

func OptionsFromConfig(cfg config.Config) (opts Options, err error) {
	service, notify, write, err := cfg.UUIDs()
	if err != nil {
		return
	}
	opts = Options{
		Address:        strings.ToUpper(cfg.Address),
		Adapter:        cfg.Adapter,
		ServiceUUID:    service,
		NotifyUUID:     notify,
		WriteUUID:      write,
		ConnectTimeout: cfg.Timeouts.Connect.Duration,
	}
	return
}

func NewDevice(backend string, opts Options, log *logging.Logger) (device Device, err error) {
	if opts.Address == "" {
		err = fmt.Errorf("no device address")
		return
	}
	switch backend {
	case config.BACKEND_BLUEZ:
		return newBluezDevice(opts, log)
	case config.BACKEND_TINYGO:
		return newTinygoDevice(opts, log)
	}
	err = fmt.Errorf("unknown ble backend %q", backend)
	return
}

//	ConnectWithRetry makes up to attempts connection attempts, dropping any
//	half open connection between them.
func ConnectWithRetry(ctx context.Context, device Device, attempts int, log *logging.Logger) (err error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		err = device.Connect(ctx)
		if err == nil {
			return
		}
		log.Warning(fmt.Sprintf("connection attempt %d/%d to %s failed: %s", attempt, attempts, device.Address(), err.Error()))
		_ = device.Disconnect()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		select {
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return
}
