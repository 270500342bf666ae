package protocol

import (
	"fmt"
	"iter"
)

//	per write overhead: 3 bytes ATT header plus the chunk index byte
const CHUNK_OVERHEAD = 4

func ChunkSize(mtu int) (size int, err error) {
	size = mtu - CHUNK_OVERHEAD
	if size < 1 {
		err = fmt.Errorf("%w: %d", ErrMTUTooSmall, mtu)
		size = 0
	}
	return
}

//	Fragment lazily splits a packet into index-tagged chunks of at most
//	ChunkSize(mtu) payload bytes. Chunk 0 starts with the packet length byte.
func Fragment(packet []byte, mtu int) (chunks iter.Seq[[]byte], err error) {
	size, err := ChunkSize(mtu)
	if err != nil {
		return
	}
	chunks = func(yield func([]byte) bool) {
		for index, offset := 0, 0; offset < len(packet); index, offset = index+1, offset+size {
			end := min(offset+size, len(packet))
			chunk := make([]byte, 0, 1+end-offset)
			chunk = append(chunk, byte(index))
			chunk = append(chunk, packet[offset:end]...)
			if !yield(chunk) {
				return
			}
		}
	}
	return
}
