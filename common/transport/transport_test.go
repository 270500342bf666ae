package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/ldotlopez/kadoma/common/ble"
	. "github.com/ldotlopez/kadoma/common/protocol"
	"github.com/ldotlopez/kadoma/common/util"
)

var testLog = logging.MustGetLogger("transport-test")

func newTestTransport(t *testing.T, mtu int) (*Transport, *ble.MockDevice) {
	device := ble.NewMockDevice()
	device.MTUSize = mtu
	if err := device.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr := NewTransport(device, time.Second, testLog)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	return tr, device
}

func setSilent(device *ble.MockDevice, silent bool) {
	device.Lock()
	device.Silent = silent
	device.Unlock()
}

func TestSendCommandRoundTrip(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	device.SetRegister(0x0030, Param{Key: 0x20, Value: 3})

	cmd, params, err := tr.SendCommand(context.Background(), 0x0030, []Param{{Key: 0x20, Value: 2}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != 0x0030 || len(params) != 1 || params[0] != (Param{Key: 0x20, Value: 3}) {
		t.Fatal("unexpected reply", cmd, params)
	}
	if tr.MTU() != ble.DEFAULT_MTU {
		t.Fatal("mtu not recorded", tr.MTU())
	}
	requests := device.Requests()
	if len(requests) != 1 || FormatHex(requests[0]) != "07:00:00:30:20:01:02" {
		t.Fatal("unexpected request on the wire", requests)
	}
}

func TestSendCommandSmallMTU(t *testing.T) {
	tr, device := newTestTransport(t, 5)
	defer tr.Stop()
	device.SetRegister(0x0050, Param{Key: 0x20, Value: 5}, Param{Key: 0x21, Value: 1})

	_, params, err := tr.SendCommand(context.Background(), 0x0050, []Param{{Key: 0x20, Value: 0}, {Key: 0x21, Value: 0}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 2 || params[0].Value != 5 || params[1].Value != 1 {
		t.Fatal("unexpected reply", params)
	}
	//	10 bytes over 1 byte chunks
	if device.Writes() != 10 {
		t.Fatal("expected one write per byte", device.Writes())
	}
}

func TestSendPacket(t *testing.T) {
	tr, _ := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()

	packet, _ := ParseHex("07:00:00:20:20:01:00")
	reply, err := tr.SendPacket(context.Background(), packet, 0)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Command != 0x0020 || len(reply.Params) != 1 || reply.Params[0] != (Param{Key: 0x20, Value: 0}) {
		t.Fatal("unexpected echo", reply)
	}
	if FormatHex(reply.Packet) != "07:00:00:20:20:01:00" {
		t.Fatal("reply packet", FormatHex(reply.Packet))
	}

	if _, err = tr.SendPacket(context.Background(), []byte{0x09, 0x00, 0x00, 0x20}, 0); !errors.Is(err, ErrMalformedPacket) {
		t.Fatal("malformed packet should be refused before sending", err)
	}
}

func TestSendRequiresStart(t *testing.T) {
	device := ble.NewMockDevice()
	tr := NewTransport(device, time.Second, testLog)
	if _, _, err := tr.SendCommand(context.Background(), 0x0020, nil, 0); err != ErrNotStarted {
		t.Fatal("expected ErrNotStarted", err)
	}
	//	subscribe fails while the mock is disconnected
	if err := tr.Start(); err == nil {
		t.Fatal("start should fail on a disconnected link")
	}
}

func TestSendCommandTimeout(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	setSilent(device, true)

	start := time.Now()
	_, _, err := tr.SendCommand(context.Background(), 0x0020, []Param{{Key: 0x20, Value: 0}}, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("expected timeout", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout took too long")
	}
	if tr.Pending() != 1 {
		t.Fatal("timed out request should stay pending", tr.Pending())
	}
}

func TestSupersede(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	setSilent(device, true)

	first := make(chan error, 1)
	go func() {
		_, _, err := tr.SendCommand(context.Background(), 0x0020, []Param{{Key: 0x20, Value: 0}}, 5*time.Second)
		first <- err
	}()
	util.TrueBefore(t, func() bool { return tr.Pending() == 1 }, time.Now().Add(time.Second))

	setSilent(device, false)
	device.SetRegister(0x0020, Param{Key: 0x20, Value: 1})
	_, params, err := tr.SendCommand(context.Background(), 0x0020, []Param{{Key: 0x20, Value: 0}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if params[0].Value != 1 {
		t.Fatal("second request got the wrong reply", params)
	}

	select {
	case err := <-first:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatal("expected ErrSuperseded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded request never completed")
	}
}

func TestIndependentKeysDoNotInterfere(t *testing.T) {
	tr, device := newTestTransport(t, 8)
	defer tr.Stop()
	device.SetRegister(0x0020, Param{Key: 0x20, Value: 1})
	device.SetRegister(0x0030, Param{Key: 0x20, Value: 4})

	type result struct {
		cmd    uint16
		params []Param
		err    error
	}
	results := make(chan result, 2)
	for _, cmd := range []uint16{0x0020, 0x0030} {
		go func(cmd uint16) {
			c, p, err := tr.SendCommand(context.Background(), cmd, []Param{{Key: 0x20, Value: 0}}, 0)
			results <- result{c, p, err}
		}(cmd)
	}
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatal(r.err)
		}
		switch r.cmd {
		case 0x0020:
			if r.params[0].Value != 1 {
				t.Fatal("power reply mismatch", r.params)
			}
		case 0x0030:
			if r.params[0].Value != 4 {
				t.Fatal("mode reply mismatch", r.params)
			}
		default:
			t.Fatal("unexpected command", r.cmd)
		}
	}
}

func TestWriteErrorPropagates(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	linkErr := errors.New("link lost")
	device.Lock()
	device.WriteErr = linkErr
	device.Unlock()

	_, _, err := tr.SendCommand(context.Background(), 0x0020, nil, 0)
	var writeErr *WriteError
	if !errors.As(err, &writeErr) || !errors.Is(err, linkErr) {
		t.Fatal("expected WriteError wrapping the link error", err)
	}
}

func TestStopCancelsPending(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	setSilent(device, true)

	done := make(chan error, 1)
	go func() {
		_, _, err := tr.SendCommand(context.Background(), 0x0040, nil, 5*time.Second)
		done <- err
	}()
	util.TrueBefore(t, func() bool { return tr.Pending() == 1 }, time.Now().Add(time.Second))

	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatal("expected ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request survived Stop")
	}
	if tr.Pending() != 0 {
		t.Fatal("table not cleared")
	}
}

func TestContextCancellation(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	setSilent(device, true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-time.After(20 * time.Millisecond)
		cancel()
	}()
	if _, _, err := tr.SendCommand(ctx, 0x0020, nil, 5*time.Second); err != context.Canceled {
		t.Fatal("expected context.Canceled", err)
	}
}

func TestStrayNotificationsAreDropped(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()

	//	continuation with nothing accumulated
	device.Notify([]byte{0x01, 0xaa, 0xbb})
	//	empty notification
	device.Notify([]byte{})
	//	complete reply nobody asked for
	unsolicited, _ := Encode(0x0110, []Param{{Key: 0x40, Value: 0x1a}})
	device.NotifyPacket(unsolicited)
	//	reply with an unparseable body
	device.Notify([]byte{0x00, 0x06, 0x00, 0x00, 0x20, 0x20, 0x09})

	if tr.Pending() != 0 {
		t.Fatal("stray notifications created state", tr.Pending())
	}
	device.SetRegister(0x0020, Param{Key: 0x20, Value: 1})
	_, params, err := tr.SendCommand(context.Background(), 0x0020, []Param{{Key: 0x20, Value: 0}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if params[0].Value != 1 {
		t.Fatal("reply corrupted by earlier noise", params)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr, _ := newTestTransport(t, ble.DEFAULT_MTU)
	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := tr.SendCommand(context.Background(), 0x0020, nil, 0); err != ErrNotStarted {
		t.Fatal("expected ErrNotStarted after Stop", err)
	}
}

func TestStopRacingSends(t *testing.T) {
	device := ble.NewMockDevice()
	if err := device.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	setSilent(device, true)
	//	no default timeout: only Stop can release the callers
	tr := NewTransport(device, 0, testLog)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}

	const senders = 32
	results := make(chan error, senders)
	var started sync.WaitGroup
	started.Add(senders)
	for i := 1; i <= senders; i++ {
		go func(cmd uint16) {
			started.Done()
			_, _, err := tr.SendCommand(context.Background(), cmd, nil, 0)
			results <- err
		}(uint16(i))
	}
	started.Wait()
	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for i := 0; i < senders; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrCancelled) && err != ErrNotStarted {
				t.Fatal("expected ErrCancelled or ErrNotStarted", err)
			}
		case <-deadline:
			t.Fatal("a send outlived Stop")
		}
	}
	if tr.Pending() != 0 {
		t.Fatal("slots registered after Stop", tr.Pending())
	}
}

func TestSendPacketKeepsReplyBytes(t *testing.T) {
	tr, device := newTestTransport(t, ble.DEFAULT_MTU)
	defer tr.Stop()
	setSilent(device, true)

	request, _ := ParseHex("07:00:00:20:20:01:00")
	done := make(chan Reply, 1)
	go func() {
		reply, err := tr.SendPacket(context.Background(), request, 0)
		if err != nil {
			t.Error(err)
		}
		done <- reply
	}()
	util.TrueBefore(t, func() bool { return tr.Pending() == 1 }, time.Now().Add(time.Second))

	//	value padded to two bytes, re-encoding would shrink it
	padded, _ := ParseHex("08:00:00:20:20:02:00:01")
	device.NotifyPacket(padded)
	select {
	case reply := <-done:
		if FormatHex(reply.Packet) != "08:00:00:20:20:02:00:01" {
			t.Fatal("reply packet rewritten", FormatHex(reply.Packet))
		}
		if len(reply.Params) != 1 || reply.Params[0].Value != 1 {
			t.Fatal("decoded params", reply.Params)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}
