package ble

import (
	"context"
	"sync"

	. "github.com/ldotlopez/kadoma/common/protocol"
)

//	update commands carry this bit over their query counterpart
const UPDATE_BIT = 0x4000

const MOCK_ADDRESS = "00:11:22:33:44:55"

//	MockDevice is an in-memory appliance. It reassembles written chunks,
//	answers each request from its register table and notifies the reply
//	fragmented to its MTU. Like the real unit, the reply to an update carries
//	the values held before the update.
type MockDevice struct {
	sync.Mutex
	MTUSize   int
	Registers map[uint16][]Param
	//	swallow requests without replying
	Silent       bool
	WriteErr     error
	SubscribeErr error
	DeviceInfo   Info
	//	optional override of the register based replies
	Replier func(cmd uint16, params []Param) (uint16, []Param)

	requests  [][]byte
	writes    int
	handler   func([]byte)
	rx        *Reassembler
	connected bool
	deliver   sync.Mutex
}

func NewMockDevice() *MockDevice {
	return &MockDevice{
		MTUSize:   DEFAULT_MTU,
		Registers: map[uint16][]Param{},
		DeviceInfo: Info{
			Address:          MOCK_ADDRESS,
			Name:             "BRC1H",
			Manufacturer:     "Mock",
			Model:            "BRC1H519W",
			FirmwareRevision: "1.0.0",
		},
		rx: NewReassembler(),
	}
}

func (m *MockDevice) SetRegister(cmd uint16, params ...Param) {
	m.Lock()
	defer m.Unlock()
	m.Registers[cmd] = params
}

func (m *MockDevice) Register(cmd uint16) []Param {
	m.Lock()
	defer m.Unlock()
	return append([]Param(nil), m.Registers[cmd]...)
}

//	Requests returns the complete request packets received so far.
func (m *MockDevice) Requests() [][]byte {
	m.Lock()
	defer m.Unlock()
	return append([][]byte(nil), m.requests...)
}

func (m *MockDevice) Writes() int {
	m.Lock()
	defer m.Unlock()
	return m.writes
}

func (m *MockDevice) Address() string {
	return m.DeviceInfo.Address
}

func (m *MockDevice) Connect(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	m.connected = true
	return nil
}

func (m *MockDevice) Disconnect() error {
	m.Lock()
	defer m.Unlock()
	m.connected = false
	m.handler = nil
	return nil
}

func (m *MockDevice) IsConnected() bool {
	m.Lock()
	defer m.Unlock()
	return m.connected
}

func (m *MockDevice) MTU() (int, error) {
	m.Lock()
	defer m.Unlock()
	if !m.connected {
		return 0, ErrNotConnected
	}
	return m.MTUSize, nil
}

func (m *MockDevice) Subscribe(handler func([]byte)) error {
	m.Lock()
	defer m.Unlock()
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	if !m.connected {
		return ErrNotConnected
	}
	m.handler = handler
	return nil
}

func (m *MockDevice) Unsubscribe() error {
	m.Lock()
	defer m.Unlock()
	m.handler = nil
	return nil
}

func (m *MockDevice) ReadInfo(ctx context.Context) (Info, error) {
	m.Lock()
	defer m.Unlock()
	if !m.connected {
		return Info{}, ErrNotConnected
	}
	return m.DeviceInfo, nil
}

func (m *MockDevice) Write(chunk []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if !m.connected {
		return ErrNotConnected
	}
	m.writes++
	packet, err := m.rx.Feed(chunk)
	if err != nil || packet == nil {
		return nil
	}
	m.requests = append(m.requests, packet)
	if m.Silent || m.handler == nil {
		return nil
	}
	cmd, params, err := Decode(packet)
	if err != nil {
		return nil
	}
	replyCmd, replyParams := m.respondLocked(cmd, params)
	reply, err := Encode(replyCmd, replyParams)
	if err != nil {
		return nil
	}
	go m.notify(m.handler, reply, m.MTUSize)
	return nil
}

func (m *MockDevice) respondLocked(cmd uint16, params []Param) (uint16, []Param) {
	if m.Replier != nil {
		return m.Replier(cmd, params)
	}
	if cmd&UPDATE_BIT == 0 {
		if current, ok := m.Registers[cmd]; ok && len(current) > 0 {
			return cmd, current
		}
		return cmd, params
	}

	query := cmd &^ UPDATE_BIT
	current := m.Registers[query]
	reply := make([]Param, len(params))
	for i, param := range params {
		reply[i] = param
		for _, held := range current {
			if held.Key == param.Key {
				reply[i].Value = held.Value
				break
			}
		}
	}
	m.Registers[query] = mergeParams(current, params)
	return cmd, reply
}

func mergeParams(current, update []Param) []Param {
	merged := append([]Param(nil), current...)
	for _, param := range update {
		replaced := false
		for i := range merged {
			if merged[i].Key == param.Key {
				merged[i].Value = param.Value
				replaced = true
			}
		}
		if !replaced {
			merged = append(merged, param)
		}
	}
	return merged
}

//	replies are delivered one at a time, chunks in order
func (m *MockDevice) notify(handler func([]byte), packet []byte, mtu int) {
	m.deliver.Lock()
	defer m.deliver.Unlock()
	chunks, err := Fragment(packet, mtu)
	if err != nil {
		return
	}
	for chunk := range chunks {
		handler(chunk)
	}
}

//	Notify injects a raw chunk as if the appliance had sent it.
func (m *MockDevice) Notify(chunk []byte) {
	m.Lock()
	handler := m.handler
	m.Unlock()
	if handler == nil {
		return
	}
	m.deliver.Lock()
	defer m.deliver.Unlock()
	handler(chunk)
}

//	NotifyPacket injects a complete packet, fragmented to the device MTU.
func (m *MockDevice) NotifyPacket(packet []byte) {
	m.Lock()
	handler, mtu := m.handler, m.MTUSize
	m.Unlock()
	if handler == nil {
		return
	}
	m.notify(handler, packet, mtu)
}
