package runtime

import (
	"encoding/binary"
	"fmt"
	"io"

	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
)

// Frame types returned by the broker. Every inbound frame is
// [4-byte BE size][4-byte BE frame type][data], where size covers the frame
// type and the data.
const (
	frameTypeResponse int32 = 0
	frameTypeError    int32 = 1
	frameTypeMessage  int32 = 2
)

var (
	magicV2       = []byte("  V2")
	heartbeatBody = []byte("_heartbeat_")
	okBody        = []byte("OK")

	cmdNOP = appendCommand(nil, "NOP")
)

// response is one entry in a connection's response queue.
type response struct {
	frameType int32
	data      []byte
}

// maxFrameSize bounds the data portion of one inbound frame. Broker responses
// here are acknowledgements and error strings, so anything past this is a
// corrupt length prefix, not a legitimate frame; allocating what it claims
// would hand a broken peer up to 2 GiB per frame.
const maxFrameSize = 1 << 20

// readFrame reads a single framed broker response from r.
func readFrame(r io.Reader) (int32, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := int32(binary.BigEndian.Uint32(header[:4]))
	frameType := int32(binary.BigEndian.Uint32(header[4:]))
	if size < 4 || size-4 > maxFrameSize {
		return 0, nil, &errspkg.ProtocolError{Reason: fmt.Sprintf("invalid frame size %d", size)}
	}
	data := make([]byte, size-4)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return frameType, data, nil
}

// appendCommand appends an ASCII command line: the command name, space
// separated arguments, and a trailing newline.
func appendCommand(dst []byte, name string, args ...string) []byte {
	dst = append(dst, name...)
	for _, arg := range args {
		dst = append(dst, ' ')
		dst = append(dst, arg...)
	}
	return append(dst, '\n')
}

// appendBody appends the 4-byte big-endian length prefix followed by data.
func appendBody(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

// batchBody encodes an MPUB body: the 4-byte total body size, the 4-byte
// message count, then one length-prefixed entry per message. The total covers
// the count field and every entry: 4 + sum(4 + len(m)).
func batchBody(msgs [][]byte) []byte {
	total := 4
	for _, m := range msgs {
		total += 4 + len(m)
	}
	dst := make([]byte, 0, 4+total)
	dst = binary.BigEndian.AppendUint32(dst, uint32(total))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(msgs)))
	for _, m := range msgs {
		dst = appendBody(dst, m)
	}
	return dst
}
