package ble

import (
	"github.com/satori/go.uuid"
)

//	vendor GATT service of the remote controller
var (
	SERVICE_UUID = uuid.Must(uuid.FromString("2141e110-213a-11e6-b67b-9e71128cae77"))
	NOTIFY_UUID  = uuid.Must(uuid.FromString("2141e111-213a-11e6-b67b-9e71128cae77"))
	WRITE_UUID   = uuid.Must(uuid.FromString("2141e112-213a-11e6-b67b-9e71128cae77"))
)

//	Device Information Service, Bluetooth SIG assigned numbers
var (
	DEVICE_INFORMATION_UUID = sigUUID(0x180a)
	MODEL_NUMBER_UUID       = sigUUID(0x2a24)
	SERIAL_NUMBER_UUID      = sigUUID(0x2a25)
	FIRMWARE_REVISION_UUID  = sigUUID(0x2a26)
	HARDWARE_REVISION_UUID  = sigUUID(0x2a27)
	SOFTWARE_REVISION_UUID  = sigUUID(0x2a28)
	MANUFACTURER_NAME_UUID  = sigUUID(0x2a29)
)

//	expands a 16 bit assigned number over the Bluetooth base UUID
func sigUUID(short uint16) uuid.UUID {
	u := uuid.Must(uuid.FromString("00000000-0000-1000-8000-00805f9b34fb"))
	u[2] = byte(short >> 8)
	u[3] = byte(short)
	return u
}
