package protocol

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

const MAX_PACKET_SIZE = 255

//	packet header: [len][0x00][cmd_hi][cmd_lo]
const HEADER_SIZE = 4

type Param struct {
	Key   byte   `json:"key"`
	Value uint64 `json:"value"`
}

func (p Param) String() string {
	return fmt.Sprintf("0x%02x=%d", p.Key, p.Value)
}

//	minimal big-endian width of v, at least one byte
func valueWidth(v uint64) int {
	n := (bits.Len64(v) + 7) / 8
	if n == 0 {
		n = 1
	}
	return n
}

//	Encode serializes a command and its ordered parameters. A command without
//	parameters carries the placeholder entry 00 00.
func Encode(cmd uint16, params []Param) (packet []byte, err error) {
	packet = make([]byte, HEADER_SIZE, 16)
	binary.BigEndian.PutUint16(packet[2:4], cmd)

	if len(params) == 0 {
		packet = append(packet, 0x00, 0x00)
	}
	for _, param := range params {
		n := valueWidth(param.Value)
		packet = append(packet, param.Key, byte(n))
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], param.Value)
		packet = append(packet, value[8-n:]...)
		if len(packet) > MAX_PACKET_SIZE {
			err = fmt.Errorf("%w: command 0x%04x", ErrEncodingOverflow, cmd)
			packet = nil
			return
		}
	}
	packet[0] = byte(len(packet))
	return
}

//	Decode parses a full packet. The 00 00 placeholder of a parameterless
//	command is skipped; any other zero-length entry decodes to value 0.
func Decode(packet []byte) (cmd uint16, params []Param, err error) {
	if len(packet) < HEADER_SIZE {
		err = fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedPacket, len(packet))
		return
	}
	if int(packet[0]) != len(packet) {
		err = fmt.Errorf("%w: declared length %d, actual %d", ErrMalformedPacket, packet[0], len(packet))
		return
	}
	cmd = binary.BigEndian.Uint16(packet[2:4])

	params = []Param{}
	offset := HEADER_SIZE
	for offset < len(packet) {
		if offset+2 > len(packet) {
			err = fmt.Errorf("%w: truncated entry header at offset %d", ErrMalformedPacket, offset)
			return 0, nil, err
		}
		key := packet[offset]
		n := int(packet[offset+1])
		offset += 2
		if offset+n > len(packet) {
			err = fmt.Errorf("%w: entry 0x%02x needs %d bytes, %d left", ErrMalformedPacket, key, n, len(packet)-offset)
			return 0, nil, err
		}
		if n > 8 {
			err = fmt.Errorf("%w: entry 0x%02x is %d bytes wide", ErrMalformedPacket, key, n)
			return 0, nil, err
		}
		if n == 0 && key == 0 {
			continue
		}
		var value uint64
		for _, b := range packet[offset : offset+n] {
			value = value<<8 | uint64(b)
		}
		params = append(params, Param{Key: key, Value: value})
		offset += n
	}
	return
}

//	CommandIdentifierOf reads the correlation key of a packet: bytes 3 and 4
//	big-endian, i.e. the low command byte followed by the first entry key.
//	Requests and their replies share it.
func CommandIdentifierOf(packet []byte) (id uint16, err error) {
	if len(packet) < 5 {
		err = fmt.Errorf("%w: %d bytes carry no command identifier", ErrMalformedPacket, len(packet))
		return
	}
	id = binary.BigEndian.Uint16(packet[3:5])
	return
}
