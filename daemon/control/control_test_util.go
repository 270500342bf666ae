package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/config"
	"github.com/ldotlopez/kadoma/common/log"
	. "github.com/ldotlopez/kadoma/common/persistance"
	. "github.com/ldotlopez/kadoma/common/protocol"
	"github.com/ldotlopez/kadoma/common/socket"
	. "github.com/ldotlopez/kadoma/common/util"
)

func TestTimeouts() config.Timeouts {
	return config.Timeouts{
		Connect:    config.Duration{Duration: time.Second},
		Command:    config.Duration{Duration: 500 * time.Millisecond},
		QueryDelay: config.Duration{Duration: time.Millisecond},
	}
}

//	NewTestMockDevice is a connected mock holding a plausible unit state.
func NewTestMockDevice(t *testing.T) (device *ble.MockDevice) {
	device = ble.NewMockDevice()
	device.SetRegister(0x0020, Param{Key: 0x20, Value: 1})
	device.SetRegister(0x0030, Param{Key: 0x20, Value: 3})
	device.SetRegister(0x0050, Param{Key: 0x20, Value: 2}, Param{Key: 0x21, Value: 0})
	device.SetRegister(0x0110, Param{Key: 0x40, Value: 23}, Param{Key: 0x41, Value: 0xFF})
	device.SetRegister(0x0100, Param{Key: 0x62, Value: 0})
	device.SetRegister(0x0040, Param{Key: 0x20, Value: 0x0c00}, Param{Key: 0x21, Value: 0x0a80}, Param{Key: 0x31, Value: 2})
	if err := device.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return
}

func NewTestControlServer(t *testing.T) (cs *ControlServer) {
	cs, err := NewControlServer(&MemoryPersister{}, TestTimeouts(), log.SetupLogging("test", logging.INFO, false))
	if err != nil {
		t.Fatal(err)
	}
	return
}

//	NewLocalUnixServer serves a control server attached to a mock device on
//	a fresh unix socket.
func NewLocalUnixServer(t *testing.T) (cs *ControlServer, device *ble.MockDevice, unixFile string) {
	cs = NewTestControlServer(t)
	device = NewTestMockDevice(t)
	if err := cs.Attach(context.Background(), device); err != nil {
		t.Fatal(err)
	}

	randFile, err := Rand128Base62()
	if err != nil {
		t.Fatal(err)
	}
	unixFile = filepath.Join(os.TempDir(), randFile)
	l, err := socket.Listen(unixFile)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		//	returns once the listener is closed
		_ = cs.HandleControlHTTP(l)
	}()
	return
}
