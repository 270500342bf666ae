//go:build linux || darwin || windows

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/satori/go.uuid"
	"tinygo.org/x/bluetooth"
)

//	tinygoDevice is the portable backend, found by scanning for its address.
type tinygoDevice struct {
	sync.Mutex
	opts    Options
	log     *logging.Logger
	adapter *bluetooth.Adapter

	device    bluetooth.Device
	notify    bluetooth.DeviceCharacteristic
	write     bluetooth.DeviceCharacteristic
	name      string
	connected bool
}

func newTinygoDevice(opts Options, log *logging.Logger) (Device, error) {
	return &tinygoDevice{
		opts:    opts,
		log:     log,
		adapter: bluetooth.DefaultAdapter,
	}, nil
}

func toBluetoothUUID(u uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(u.String())
}

func (d *tinygoDevice) Address() string {
	return d.opts.Address
}

//	scan blocks until a result matches or ctx ends
func scan(ctx context.Context, adapter *bluetooth.Adapter, match func(bluetooth.ScanResult) bool) (result bluetooth.ScanResult, err error) {
	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)
	go func() {
		done <- adapter.Scan(func(adapter *bluetooth.Adapter, r bluetooth.ScanResult) {
			if match(r) {
				select {
				case found <- r:
				default:
				}
				adapter.StopScan()
			}
		})
	}()
	select {
	case result = <-found:
		return
	case err = <-done:
		if err == nil {
			err = fmt.Errorf("scan stopped without a match")
		}
		return
	case <-ctx.Done():
		adapter.StopScan()
		err = ctx.Err()
		return
	}
}

func (d *tinygoDevice) Connect(ctx context.Context) (err error) {
	d.Lock()
	defer d.Unlock()
	if d.connected {
		return
	}
	if err = d.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()
	result, err := scan(scanCtx, d.adapter, func(r bluetooth.ScanResult) bool {
		return strings.EqualFold(r.Address.String(), d.opts.Address)
	})
	if err != nil {
		return fmt.Errorf("device %s not found: %w", d.opts.Address, err)
	}
	d.name = result.LocalName()

	serviceUUID, err := toBluetoothUUID(d.opts.ServiceUUID)
	if err != nil {
		return
	}
	notifyUUID, err := toBluetoothUUID(d.opts.NotifyUUID)
	if err != nil {
		return
	}
	writeUUID, err := toBluetoothUUID(d.opts.WriteUUID)
	if err != nil {
		return
	}

	device, err := openLink(
		func() (bluetooth.Device, error) {
			device, err := d.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
			if err != nil {
				return device, fmt.Errorf("connect to %s failed: %w", d.opts.Address, err)
			}
			return device, nil
		},
		func(device bluetooth.Device) error {
			return d.resolveCharacteristics(device, serviceUUID, notifyUUID, writeUUID)
		},
		func(device bluetooth.Device) error {
			return device.Disconnect()
		},
	)
	if err != nil {
		return
	}
	d.device = device
	d.connected = true
	d.log.Notice("connected to", d.opts.Address)
	return
}

//	openLink connects then resolves what the transport needs. A link that
//	opened but could not be resolved is closed before returning.
func openLink(
	connect func() (bluetooth.Device, error),
	resolve func(bluetooth.Device) error,
	disconnect func(bluetooth.Device) error,
) (device bluetooth.Device, err error) {
	if device, err = connect(); err != nil {
		return
	}
	if err = resolve(device); err != nil {
		if closeErr := disconnect(device); closeErr != nil {
			err = fmt.Errorf("%w (closing link: %s)", err, closeErr.Error())
		}
	}
	return
}

//	caller holds d
func (d *tinygoDevice) resolveCharacteristics(device bluetooth.Device, serviceUUID, notifyUUID, writeUUID bluetooth.UUID) error {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("%w: service %s", ErrCharacteristicNotFound, d.opts.ServiceUUID)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{notifyUUID, writeUUID})
	if err != nil {
		return fmt.Errorf("characteristic discovery failed: %w", err)
	}
	var haveNotify, haveWrite bool
	for i := range chars {
		switch chars[i].UUID() {
		case notifyUUID:
			d.notify, haveNotify = chars[i], true
		case writeUUID:
			d.write, haveWrite = chars[i], true
		}
	}
	if !haveNotify || !haveWrite {
		return fmt.Errorf("%w: notify or write characteristic missing", ErrCharacteristicNotFound)
	}
	return nil
}

func (d *tinygoDevice) Disconnect() (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return
	}
	d.connected = false
	return d.device.Disconnect()
}

func (d *tinygoDevice) Write(chunk []byte) (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	_, err = d.write.WriteWithoutResponse(chunk)
	return
}

func (d *tinygoDevice) Subscribe(handler func(chunk []byte)) (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	return d.notify.EnableNotifications(func(buf []byte) {
		//	the backend may reuse buf
		handler(append([]byte(nil), buf...))
	})
}

func (d *tinygoDevice) Unsubscribe() (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return
	}
	return d.notify.EnableNotifications(nil)
}

func (d *tinygoDevice) MTU() (mtu int, err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return 0, ErrNotConnected
	}
	value, err := d.write.GetMTU()
	if err != nil || value == 0 {
		return DEFAULT_MTU, nil
	}
	return int(value), nil
}

func (d *tinygoDevice) ReadInfo(ctx context.Context) (info Info, err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		err = ErrNotConnected
		return
	}
	info.Address = d.opts.Address
	info.Name = d.name

	disUUID, err := toBluetoothUUID(DEVICE_INFORMATION_UUID)
	if err != nil {
		return
	}
	services, err := d.device.DiscoverServices([]bluetooth.UUID{disUUID})
	if err != nil || len(services) == 0 {
		d.log.Warning("device information service not found")
		err = nil
		return
	}
	fields := map[bluetooth.UUID]*string{}
	for charUUID, field := range infoFields(&info) {
		bu, parseErr := toBluetoothUUID(charUUID)
		if parseErr == nil {
			fields[bu] = field
		}
	}
	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		return
	}
	buf := make([]byte, 64)
	for i := range chars {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		field, ok := fields[chars[i].UUID()]
		if !ok {
			continue
		}
		n, readErr := chars[i].Read(buf)
		if readErr != nil {
			d.log.Warning("reading", chars[i].UUID().String(), "failed:", readErr)
			continue
		}
		*field = infoString(buf[:n])
	}
	return
}

type Advertisement struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

//	Discover lists the devices advertising during window.
func Discover(ctx context.Context, window time.Duration) (found []Advertisement, err error) {
	adapter := bluetooth.DefaultAdapter
	if err = adapter.Enable(); err != nil {
		return
	}
	var lock sync.Mutex
	seen := map[string]int{}
	scanCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	_, err = scan(scanCtx, adapter, func(r bluetooth.ScanResult) bool {
		lock.Lock()
		defer lock.Unlock()
		ad := Advertisement{Address: strings.ToUpper(r.Address.String()), Name: r.LocalName(), RSSI: r.RSSI}
		if i, ok := seen[ad.Address]; ok {
			found[i] = ad
		} else {
			seen[ad.Address] = len(found)
			found = append(found, ad)
		}
		return false
	})
	if err == context.DeadlineExceeded {
		err = nil
	}
	lock.Lock()
	defer lock.Unlock()
	return
}
