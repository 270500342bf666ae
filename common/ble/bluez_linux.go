//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/op/go-logging"
)

const (
	bluezBus          = "org.bluez"
	bluezDevice1      = "org.bluez.Device1"
	bluezGattChar     = "org.bluez.GattCharacteristic1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

//	bluezDevice talks GATT through BlueZ over the system bus.
type bluezDevice struct {
	sync.Mutex
	opts Options
	log  *logging.Logger

	conn       *dbus.Conn
	devicePath dbus.ObjectPath
	notifyPath dbus.ObjectPath
	writePath  dbus.ObjectPath
	connected  bool

	signals chan *dbus.Signal
	stop    chan struct{}
}

func newBluezDevice(opts Options, log *logging.Logger) (Device, error) {
	return &bluezDevice{opts: opts, log: log}, nil
}

func adapterDevicePath(adapter, address string) dbus.ObjectPath {
	devAddr := strings.ReplaceAll(strings.ToUpper(address), ":", "_")
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, devAddr))
}

func getDBusProperty[T any](conn *dbus.Conn, path dbus.ObjectPath, iface, property string) (T, error) {
	var zero T
	variant, err := conn.Object(bluezBus, path).GetProperty(iface + "." + property)
	if err != nil {
		return zero, err
	}
	val, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, property, variant.Value())
	}
	return val, nil
}

func getManagedObjects(conn *dbus.Conn) (objects managedObjects, err error) {
	call := conn.Object(bluezBus, "/").Call(dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		err = fmt.Errorf("GetManagedObjects failed: %w", call.Err)
		return
	}
	err = call.Store(&objects)
	return
}

//	characteristic object paths below devicePath, by lowercase uuid
func characteristicPaths(objects managedObjects, devicePath dbus.ObjectPath) map[string]dbus.ObjectPath {
	paths := map[string]dbus.ObjectPath{}
	prefix := string(devicePath) + "/"
	for path, ifaces := range objects {
		props, ok := ifaces[bluezGattChar]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if u, ok := props["UUID"].Value().(string); ok {
			paths[strings.ToLower(u)] = path
		}
	}
	return paths
}

func (d *bluezDevice) Address() string {
	return d.opts.Address
}

func (d *bluezDevice) Connect(ctx context.Context) (err error) {
	d.Lock()
	defer d.Unlock()
	if d.connected {
		return
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system DBus: %w", err)
	}
	d.conn = conn
	d.devicePath = adapterDevicePath(d.opts.Adapter, d.opts.Address)

	connected, propErr := getDBusProperty[bool](conn, d.devicePath, bluezDevice1, "Connected")
	if propErr != nil || !connected {
		connectCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
		defer cancel()
		call := conn.Object(bluezBus, d.devicePath).CallWithContext(connectCtx, bluezDevice1+".Connect", 0)
		if call.Err != nil {
			return fmt.Errorf("BlueZ Connect failed for %s: %w", d.opts.Address, call.Err)
		}
		//	a link we opened must not outlive a failed setup
		defer func() {
			if err != nil {
				conn.Object(bluezBus, d.devicePath).Call(bluezDevice1+".Disconnect", 0)
			}
		}()
	}
	if err = d.waitServicesResolved(ctx); err != nil {
		return
	}

	objects, err := getManagedObjects(conn)
	if err != nil {
		return
	}
	paths := characteristicPaths(objects, d.devicePath)
	var ok bool
	if d.notifyPath, ok = paths[d.opts.NotifyUUID.String()]; !ok {
		return fmt.Errorf("%w: notify %s", ErrCharacteristicNotFound, d.opts.NotifyUUID)
	}
	if d.writePath, ok = paths[d.opts.WriteUUID.String()]; !ok {
		return fmt.Errorf("%w: write %s", ErrCharacteristicNotFound, d.opts.WriteUUID)
	}
	d.connected = true
	d.log.Notice("connected to", d.opts.Address, "via", d.opts.Adapter)
	return
}

func (d *bluezDevice) waitServicesResolved(ctx context.Context) error {
	deadline := time.After(d.opts.ConnectTimeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		resolved, err := getDBusProperty[bool](d.conn, d.devicePath, bluezDevice1, "ServicesResolved")
		if err == nil && resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("service discovery timed out after %s", d.opts.ConnectTimeout)
		case <-ticker.C:
		}
	}
}

func (d *bluezDevice) Disconnect() (err error) {
	d.Lock()
	defer d.Unlock()
	d.stopNotifyLocked()
	if d.conn == nil {
		return
	}
	call := d.conn.Object(bluezBus, d.devicePath).Call(bluezDevice1+".Disconnect", 0)
	err = call.Err
	d.connected = false
	//	the system bus connection is shared, never closed here
	d.conn = nil
	return
}

func (d *bluezDevice) Write(chunk []byte) (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	call := d.conn.Object(bluezBus, d.writePath).Call(bluezGattChar+".WriteValue", 0, chunk, map[string]dbus.Variant{
		"type": dbus.MakeVariant("command"),
	})
	if call.Err != nil {
		err = fmt.Errorf("BLE write failed: %w", call.Err)
	}
	return
}

func (d *bluezDevice) matchRule() string {
	return fmt.Sprintf(
		"type='signal',sender='%s',interface='%s',member='PropertiesChanged',path='%s'",
		bluezBus, dbusProperties, d.notifyPath,
	)
}

func (d *bluezDevice) Subscribe(handler func(chunk []byte)) (err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	if d.stop != nil {
		return fmt.Errorf("already subscribed")
	}
	call := d.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, d.matchRule())
	if call.Err != nil {
		return fmt.Errorf("failed to add signal match: %w", call.Err)
	}
	d.signals = make(chan *dbus.Signal, 64)
	d.stop = make(chan struct{})
	d.conn.Signal(d.signals)

	call = d.conn.Object(bluezBus, d.notifyPath).Call(bluezGattChar+".StartNotify", 0)
	if call.Err != nil {
		d.stopNotifyLocked()
		return fmt.Errorf("StartNotify failed: %w", call.Err)
	}

	go d.notifyLoop(d.notifyPath, d.signals, d.stop, handler)
	return
}

//	chunks are handed to handler in arrival order from a single goroutine
func (d *bluezDevice) notifyLoop(path dbus.ObjectPath, signals chan *dbus.Signal, stop chan struct{}, handler func([]byte)) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Path != path || sig.Name != dbusProperties+".PropertiesChanged" || len(sig.Body) < 2 {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			if value, ok := changed["Value"].Value().([]byte); ok {
				handler(value)
			}
		}
	}
}

func (d *bluezDevice) Unsubscribe() (err error) {
	d.Lock()
	defer d.Unlock()
	if d.stop == nil {
		return
	}
	call := d.conn.Object(bluezBus, d.notifyPath).Call(bluezGattChar+".StopNotify", 0)
	err = call.Err
	d.stopNotifyLocked()
	return
}

func (d *bluezDevice) stopNotifyLocked() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.stop = nil
	if d.conn != nil {
		d.conn.RemoveSignal(d.signals)
		d.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, d.matchRule())
	}
	d.signals = nil
}

//	BlueZ exposes the negotiated ATT MTU on the characteristic
func (d *bluezDevice) MTU() (mtu int, err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		return 0, ErrNotConnected
	}
	value, propErr := getDBusProperty[uint16](d.conn, d.writePath, bluezGattChar, "MTU")
	if propErr != nil || value == 0 {
		return DEFAULT_MTU, nil
	}
	return int(value), nil
}

func (d *bluezDevice) ReadInfo(ctx context.Context) (info Info, err error) {
	d.Lock()
	defer d.Unlock()
	if !d.connected {
		err = ErrNotConnected
		return
	}
	info.Address = d.opts.Address
	info.Name, _ = getDBusProperty[string](d.conn, d.devicePath, bluezDevice1, "Name")

	objects, err := getManagedObjects(d.conn)
	if err != nil {
		return
	}
	paths := characteristicPaths(objects, d.devicePath)
	for charUUID, field := range infoFields(&info) {
		path, ok := paths[charUUID.String()]
		if !ok {
			continue
		}
		call := d.conn.Object(bluezBus, path).CallWithContext(ctx, bluezGattChar+".ReadValue", 0, map[string]dbus.Variant{})
		if call.Err != nil {
			d.log.Warning("reading", charUUID.String(), "failed:", call.Err)
			continue
		}
		var value []byte
		if storeErr := call.Store(&value); storeErr == nil {
			*field = infoString(value)
		}
	}
	return
}

//	ForceDisconnect drops a connection BlueZ may still hold for address, e.g.
//	one left behind by a previous daemon.
func ForceDisconnect(adapter, address string) (err error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system DBus: %w", err)
	}
	path := adapterDevicePath(adapter, address)
	connected, err := getDBusProperty[bool](conn, path, bluezDevice1, "Connected")
	if err != nil || !connected {
		return nil
	}
	call := conn.Object(bluezBus, path).Call(bluezDevice1+".Disconnect", 0)
	return call.Err
}
