package protocol

import (
	"fmt"
)

type ReassemblerState int

const (
	Empty ReassemblerState = iota
	Accumulating
)

func (s ReassemblerState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Accumulating:
		return "accumulating"
	}
	return fmt.Sprintf("ReassemblerState(%d)", int(s))
}

//	Reassembler rebuilds one packet at a time from index-tagged chunks. Not
//	safe for concurrent use.
type Reassembler struct {
	fragments    map[byte][]byte
	currentSize  int
	expectedSize int
}

func NewReassembler() *Reassembler {
	return &Reassembler{}
}

func (r *Reassembler) State() ReassemblerState {
	if r.fragments == nil {
		return Empty
	}
	return Accumulating
}

func (r *Reassembler) Reset() {
	r.fragments = nil
	r.currentSize = 0
	r.expectedSize = 0
}

//	Feed consumes one chunk. It returns the packet once the accumulated size
//	reaches the size declared by fragment 0. ErrDesync means the chunk (and, on
//	overshoot or a missing fragment, the partial buffer) was dropped; feeding
//	can continue.
func (r *Reassembler) Feed(chunk []byte) (packet []byte, err error) {
	if len(chunk) == 0 {
		err = fmt.Errorf("%w: empty chunk", ErrDesync)
		return
	}
	index := chunk[0]
	payload := append([]byte(nil), chunk[1:]...)

	if index == 0 {
		if r.State() == Accumulating {
			err = fmt.Errorf("%w: start chunk while %d of %d bytes pending", ErrDesync, r.currentSize, r.expectedSize)
			return
		}
		if len(payload) == 0 {
			err = fmt.Errorf("%w: start chunk without length byte", ErrDesync)
			return
		}
		r.fragments = map[byte][]byte{0: payload}
		r.expectedSize = int(payload[0])
		r.currentSize = len(payload)
	} else {
		if r.State() == Empty {
			err = fmt.Errorf("%w: chunk %d without start chunk", ErrDesync, index)
			return
		}
		if previous, ok := r.fragments[index]; ok {
			r.currentSize -= len(previous)
		}
		r.fragments[index] = payload
		r.currentSize += len(payload)
	}

	switch {
	case r.currentSize == r.expectedSize:
		return r.extract()
	case r.currentSize > r.expectedSize:
		err = fmt.Errorf("%w: %d bytes received for a %d byte packet", ErrDesync, r.currentSize, r.expectedSize)
		r.Reset()
	}
	return
}

func (r *Reassembler) extract() (packet []byte, err error) {
	defer r.Reset()
	packet = make([]byte, 0, r.expectedSize)
	for i := 0; i < len(r.fragments); i++ {
		fragment, ok := r.fragments[byte(i)]
		if !ok {
			err = fmt.Errorf("%w: fragment %d missing", ErrDesync, i)
			return nil, err
		}
		packet = append(packet, fragment...)
	}
	return
}
