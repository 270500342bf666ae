package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

type SlotState int

const (
	Unresolved SlotState = iota
	Resolved
	Cancelled
)

func (s SlotState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

//	Reply is a decoded response and, when known, the packet it was decoded from.
type Reply struct {
	Command uint16
	Params  []Param
	Packet  []byte
}

//	Slot is the completion handle of one pending request.
type Slot struct {
	Key uint16

	done  chan struct{}
	state SlotState
	reply Reply
	err   error
}

func newSlot(key uint16) *Slot {
	return &Slot{
		Key:  key,
		done: make(chan struct{}),
	}
}

//	Done is closed once the slot is resolved or cancelled.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

//	Wait blocks until the slot completes, the timeout elapses (ErrTimeout) or
//	ctx ends. A timed out slot stays registered. A zero timeout waits on ctx only.
func (s *Slot) Wait(ctx context.Context, timeout time.Duration) (cmd uint16, params []Param, err error) {
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}
	select {
	case <-s.done:
		return s.reply.Command, s.reply.Params, s.err
	case <-timeoutChan:
		err = fmt.Errorf("%w: command identifier 0x%04x after %s", ErrTimeout, s.Key, timeout)
		return
	case <-ctx.Done():
		err = ctx.Err()
		return
	}
}

//	Reply of a resolved slot. Only valid once Done is closed.
func (s *Slot) Reply() Reply {
	return s.reply
}

//	Err reports why a completed slot failed, nil while still pending.
func (s *Slot) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

//	Correlator keeps at most one slot per correlation key. A newer registration
//	supersedes the unresolved one.
type Correlator struct {
	sync.Mutex
	slots map[uint16]*Slot
	//	keys whose request completed or was abandoned, to tell late replies
	//	from unsolicited ones
	recent *lru.Cache
}

const RECENT_KEYS_CACHE_SIZE = 128

func NewCorrelator() *Correlator {
	return &Correlator{
		slots:  map[uint16]*Slot{},
		recent: lru.New(RECENT_KEYS_CACHE_SIZE),
	}
}

func (c *Correlator) Register(key uint16) (slot *Slot) {
	c.Lock()
	defer c.Unlock()
	if previous, ok := c.slots[key]; ok && previous.state == Unresolved {
		previous.fail(ErrSuperseded)
		c.recent.Add(key, nil)
	}
	slot = newSlot(key)
	c.slots[key] = slot
	return
}

//	Resolve completes the slot registered under key. ErrDuplicateCompletion
//	and ErrNoPendingRequest are diagnostics: the response is dropped and the
//	correlator stays usable.
func (c *Correlator) Resolve(key uint16, cmd uint16, params []Param) (err error) {
	return c.ResolveReply(key, Reply{Command: cmd, Params: params})
}

func (c *Correlator) ResolveReply(key uint16, reply Reply) (err error) {
	c.Lock()
	defer c.Unlock()
	slot, ok := c.slots[key]
	if !ok {
		if _, late := c.recent.Get(key); late {
			err = fmt.Errorf("%w: late response for command identifier 0x%04x", ErrNoPendingRequest, key)
		} else {
			err = fmt.Errorf("%w: unsolicited response for command identifier 0x%04x", ErrNoPendingRequest, key)
		}
		return
	}
	if slot.state != Unresolved {
		err = fmt.Errorf("%w: command identifier 0x%04x", ErrDuplicateCompletion, key)
		return
	}
	slot.state = Resolved
	slot.reply = reply
	close(slot.done)
	c.recent.Add(key, nil)
	return
}

//	CancelAll fails every unresolved slot with ErrCancelled and clears the table.
func (c *Correlator) CancelAll() {
	c.Lock()
	defer c.Unlock()
	for key, slot := range c.slots {
		if slot.state == Unresolved {
			slot.fail(ErrCancelled)
			c.recent.Add(key, nil)
		}
	}
	c.slots = map[uint16]*Slot{}
}

//	Pending counts unresolved slots.
func (c *Correlator) Pending() (n int) {
	c.Lock()
	defer c.Unlock()
	for _, slot := range c.slots {
		if slot.state == Unresolved {
			n++
		}
	}
	return
}

func (c *Correlator) State(key uint16) (state SlotState, ok bool) {
	c.Lock()
	defer c.Unlock()
	slot, ok := c.slots[key]
	if ok {
		state = slot.state
	}
	return
}

//	caller holds the correlator lock
func (s *Slot) fail(err error) {
	s.state = Cancelled
	s.err = err
	close(s.done)
}
