package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

//	FormatHex renders bytes as colon separated hex pairs, e.g. 07:00:00:20:20:01:00
func FormatHex(b []byte) string {
	pairs := make([]string, len(b))
	for i, octet := range b {
		pairs[i] = fmt.Sprintf("%02x", octet)
	}
	return strings.Join(pairs, ":")
}

//	ParseHex accepts colon, space or unseparated hex.
func ParseHex(s string) (b []byte, err error) {
	s = strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(s))
	b, err = hex.DecodeString(s)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrMalformedPacket, err.Error())
	}
	return
}
