package protocol

import (
	"errors"
)

var ErrMalformedPacket = errors.New("malformed packet")
var ErrEncodingOverflow = errors.New("encoded packet exceeds 255 bytes")
var ErrMTUTooSmall = errors.New("mtu too small to carry a chunk")

//	reassembly lost track of the fragment stream, buffer (or chunk) discarded
var ErrDesync = errors.New("reassembly desynchronized")

var ErrSuperseded = errors.New("request superseded by a newer one with the same identifier")
var ErrCancelled = errors.New("request cancelled")
var ErrTimeout = errors.New("request timed out")
var ErrDuplicateCompletion = errors.New("response for an already completed request")
var ErrNoPendingRequest = errors.New("no pending request for response")
