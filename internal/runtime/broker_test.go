package runtime

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	configpkg "github.com/nsqlink/nsqlink/internal/runtime/config"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

func newTestClient(t *testing.T, conf configpkg.Config) *Client {
	t.Helper()
	return NewClient(conf, loggingpkg.Nop())
}

// fakeBroker speaks just enough of the wire protocol to acknowledge IDENTIFY,
// PUB, and MPUB. Each dial gets its own session goroutine; requests within a
// session are handled strictly in arrival order, so any interleaved request
// cycle from the client shows up as a framing error.
type fakeBroker struct {
	t *testing.T

	mu        sync.Mutex
	dials     int
	pubs      []pubRequest
	batches   []batchRequest
	ackDelay  time.Duration
	errorBody string // reply to PUB/MPUB with an error frame when set
	silent    bool   // swallow PUB/MPUB acks when set
	heartbeat bool   // sneak a heartbeat frame in ahead of each publish ack
}

type pubRequest struct {
	topic string
	body  []byte
}

type batchRequest struct {
	topic string
	msgs  [][]byte
}

// install reroutes the runtime's dialer at this broker for the duration of
// the test.
func (b *fakeBroker) install(t *testing.T) {
	t.Helper()
	orig := dialTimeout
	t.Cleanup(func() { dialTimeout = orig })
	dialTimeout = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		clientSide, serverSide := net.Pipe()
		b.mu.Lock()
		b.dials++
		b.mu.Unlock()
		go b.serve(serverSide)
		return clientSide, nil
	}
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) pubRequests() []pubRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pubRequest(nil), b.pubs...)
}

func (b *fakeBroker) batchRequests() []batchRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]batchRequest(nil), b.batches...)
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return
	}
	if string(magic) != "  V2" {
		b.t.Errorf("unexpected protocol magic %q", magic)
		return
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSuffix(line, "\n"))
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "IDENTIFY":
			if _, err := readLengthPrefixed(r); err != nil {
				return
			}
			b.reply(conn, frameTypeResponse, okBody)
		case "PUB":
			if len(parts) != 2 {
				b.t.Errorf("malformed PUB command line %q", line)
				return
			}
			body, err := readLengthPrefixed(r)
			if err != nil {
				return
			}
			b.mu.Lock()
			b.pubs = append(b.pubs, pubRequest{topic: parts[1], body: body})
			b.mu.Unlock()
			if !b.replyToPublish(conn) {
				return
			}
		case "MPUB":
			if len(parts) != 2 {
				b.t.Errorf("malformed MPUB command line %q", line)
				return
			}
			body, err := readLengthPrefixed(r)
			if err != nil {
				return
			}
			msgs, err := decodeBatchBody(body)
			if err != nil {
				b.t.Errorf("malformed MPUB body: %v", err)
				return
			}
			b.mu.Lock()
			b.batches = append(b.batches, batchRequest{topic: parts[1], msgs: msgs})
			b.mu.Unlock()
			if !b.replyToPublish(conn) {
				return
			}
		case "NOP":
			// fine, nothing to do
		default:
			b.t.Errorf("unexpected command %q", parts[0])
			return
		}
	}
}

// replyToPublish applies the configured delay/error/silence, reporting
// whether the session should continue.
func (b *fakeBroker) replyToPublish(conn net.Conn) bool {
	b.mu.Lock()
	delay, errBody, silent, heartbeat := b.ackDelay, b.errorBody, b.silent, b.heartbeat
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if heartbeat {
		if !b.reply(conn, frameTypeResponse, heartbeatBody) {
			return false
		}
	}
	if silent {
		return true
	}
	if errBody != "" {
		return b.reply(conn, frameTypeError, []byte(errBody))
	}
	return b.reply(conn, frameTypeResponse, okBody)
}

func (b *fakeBroker) reply(conn net.Conn, frameType int32, data []byte) bool {
	frame := binary.BigEndian.AppendUint32(nil, uint32(4+len(data)))
	frame = binary.BigEndian.AppendUint32(frame, uint32(frameType))
	frame = append(frame, data...)
	_, err := conn.Write(frame)
	return err == nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > 1<<20 {
		return nil, fmt.Errorf("implausible body size %d", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
