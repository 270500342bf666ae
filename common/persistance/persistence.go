package persistance

import (
	"errors"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/knob"
)

const STATUS_FILENAME = "status.json"
const INFO_FILENAME = "info.json"

var ErrNotPersisted = errors.New("nothing persisted yet")

//	Persister keeps the last known appliance state across daemon restarts.
type Persister interface {
	SaveStatus(status knob.Status) (err error)
	LoadStatus() (status knob.Status, err error)
	DeleteStatus() (err error)

	SaveInfo(info ble.Info) (err error)
	LoadInfo() (info ble.Info, err error)
}
