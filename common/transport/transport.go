package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"

	. "github.com/ldotlopez/kadoma/common/protocol"
)

var ErrNotStarted = errors.New("transport not started")

//	Link is the GATT side of the transport: one write characteristic, one
//	notify characteristic and the negotiated MTU.
type Link interface {
	Write(chunk []byte) error
	Subscribe(handler func(chunk []byte)) error
	Unsubscribe() error
	MTU() (int, error)
}

//	Network-related error during send
type WriteError struct {
	error
}

func (err *WriteError) Error() string {
	return "WriteError: " + err.error.Error()
}

func (err *WriteError) Unwrap() error {
	return err.error
}

//	Transport sends commands over a Link and matches the notified replies to
//	them by command identifier. One Transport per connection.
type Transport struct {
	link    Link
	timeout time.Duration
	log     *logging.Logger

	//	keeps the chunks of one command contiguous
	writeMutex sync.Mutex

	rxMutex     sync.Mutex
	reassembler *Reassembler

	correlator *Correlator

	stateMutex sync.Mutex
	started    bool
	mtu        int
}

func NewTransport(link Link, timeout time.Duration, log *logging.Logger) *Transport {
	return &Transport{
		link:        link,
		timeout:     timeout,
		log:         log,
		reassembler: NewReassembler(),
		correlator:  NewCorrelator(),
	}
}

func (t *Transport) Start() (err error) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	if t.started {
		return
	}
	if err = t.link.Subscribe(t.handleNotification); err != nil {
		err = fmt.Errorf("subscribing to notifications: %w", err)
		return
	}
	mtu, err := t.link.MTU()
	if err != nil {
		_ = t.link.Unsubscribe()
		return
	}
	t.mtu = mtu
	t.started = true
	t.log.Notice("transport ready, mtu", mtu)
	return
}

//	Stop unsubscribes and fails every pending request with ErrCancelled.
func (t *Transport) Stop() (err error) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	if !t.started {
		return
	}
	t.started = false
	err = t.link.Unsubscribe()
	t.correlator.CancelAll()
	t.rxMutex.Lock()
	t.reassembler.Reset()
	t.rxMutex.Unlock()
	return
}

func (t *Transport) IsStarted() bool {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	return t.started
}

//	MTU last read from the link
func (t *Transport) MTU() int {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	return t.mtu
}

func (t *Transport) Pending() int {
	return t.correlator.Pending()
}

//	SendCommand encodes and sends a command, then waits for the reply with the
//	same command identifier. A zero timeout uses the transport default.
//	Sending a command whose identifier is still pending supersedes the
//	earlier call, which fails with ErrSuperseded.
func (t *Transport) SendCommand(ctx context.Context, cmd uint16, params []Param, timeout time.Duration) (replyCmd uint16, replyParams []Param, err error) {
	packet, err := Encode(cmd, params)
	if err != nil {
		return
	}
	return t.send(ctx, packet, timeout)
}

//	SendPacket sends an already encoded packet, which must decode cleanly.
//	The reply keeps the bytes exactly as reassembled.
func (t *Transport) SendPacket(ctx context.Context, packet []byte, timeout time.Duration) (reply Reply, err error) {
	if _, _, err = Decode(packet); err != nil {
		return
	}
	slot, err := t.sendAndWait(ctx, packet, timeout)
	if err != nil {
		return
	}
	reply = slot.Reply()
	return
}

func (t *Transport) send(ctx context.Context, packet []byte, timeout time.Duration) (replyCmd uint16, replyParams []Param, err error) {
	slot, err := t.sendAndWait(ctx, packet, timeout)
	if err != nil {
		return
	}
	reply := slot.Reply()
	return reply.Command, reply.Params, nil
}

//	register checks the transport is started and registers key under the state
//	lock, so a concurrent Stop either refuses the send or cancels the slot.
func (t *Transport) register(key uint16) (slot *Slot, err error) {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	if !t.started {
		err = ErrNotStarted
		return
	}
	slot = t.correlator.Register(key)
	return
}

func (t *Transport) sendAndWait(ctx context.Context, packet []byte, timeout time.Duration) (slot *Slot, err error) {
	if timeout <= 0 {
		timeout = t.timeout
	}
	key, err := CommandIdentifierOf(packet)
	if err != nil {
		return
	}
	if slot, err = t.register(key); err != nil {
		return
	}
	t.log.Debug("send", FormatHex(packet))
	if err = t.writePacket(packet); err != nil {
		//	a Stop racing the write wins
		if stopped := slot.Err(); stopped != nil {
			err = stopped
		}
		return
	}
	_, _, err = slot.Wait(ctx, timeout)
	return
}

func (t *Transport) writePacket(packet []byte) (err error) {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	mtu, err := t.link.MTU()
	if err != nil {
		return &WriteError{err}
	}
	t.stateMutex.Lock()
	t.mtu = mtu
	t.stateMutex.Unlock()

	chunks, err := Fragment(packet, mtu)
	if err != nil {
		return
	}
	for chunk := range chunks {
		if err = t.link.Write(chunk); err != nil {
			return &WriteError{err}
		}
	}
	return
}

//	runs on the link's notification goroutine, never blocks on a waiter
func (t *Transport) handleNotification(chunk []byte) {
	t.log.Debug("notified", FormatHex(chunk))

	t.rxMutex.Lock()
	packet, err := t.reassembler.Feed(chunk)
	t.rxMutex.Unlock()
	if err != nil {
		t.log.Warning(err.Error())
		return
	}
	if packet == nil {
		return
	}

	key, err := CommandIdentifierOf(packet)
	if err != nil {
		t.log.Warning("dropping reply:", err.Error())
		return
	}
	cmd, params, err := Decode(packet)
	if err != nil {
		t.log.Warning("dropping reply", FormatHex(packet)+":", err.Error())
		return
	}
	err = t.correlator.ResolveReply(key, Reply{Command: cmd, Params: params, Packet: packet})
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateCompletion):
		t.log.Error(err.Error())
	default:
		t.log.Info(err.Error())
	}
}
