package runtime

import (
	"bytes"
	"crypto/tls"
	"net"
	"os"
	"sync"
	"time"

	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	idspkg "github.com/nsqlink/nsqlink/internal/runtime/ids"
	jsoncodec "github.com/nsqlink/nsqlink/internal/runtime/jsoncodec"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
	metricspkg "github.com/nsqlink/nsqlink/internal/runtime/metrics"
)

// dialTimeout is a seam for tests; production code always dials the network.
var dialTimeout = net.DialTimeout

const respQueueDepth = 8

// conn owns one socket to one broker node and serializes the canonical
// request cycle: clear the response queue, write the command line and
// length-prefixed body, flush, then block until the acknowledgement frame
// arrives. mu spans the whole cycle so concurrent callers can never have
// their acknowledgements misattributed; wmu additionally covers raw socket
// writes so the read loop can answer heartbeats without interleaving bytes
// with a request in progress.
type conn struct {
	client *Client
	addr   string
	id     string
	log    loggingpkg.ServiceLogger

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu sync.Mutex // serializes the request cycle

	wmu  sync.Mutex // serializes socket writes
	sock net.Conn
	bw   *bufWriter

	resp    chan response // response queue, cleared at the start of each cycle
	readErr chan error

	closeOnce sync.Once
	closed    chan struct{}

	// onClose is the closure hook. It must never be invoked while holding a
	// lock the hook's target might need; close takes none.
	onClose func()
}

// bufWriter is the minimal buffered-writer surface conn needs; split out so
// the write path is obvious at a glance.
type bufWriter struct {
	sock net.Conn
	buf  []byte
}

func newBufWriter(sock net.Conn) *bufWriter {
	return &bufWriter{sock: sock, buf: make([]byte, 0, 4096)}
}

func (w *bufWriter) Write(p []byte) {
	w.buf = append(w.buf, p...)
}

func (w *bufWriter) Flush(deadline time.Time) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.sock.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := w.sock.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

func (c *conn) init(client *Client, addr string, log loggingpkg.ServiceLogger) {
	conf := client.Config()
	c.client = client
	c.addr = addr
	c.id = idspkg.New()
	c.log = log.With(loggingpkg.LogFields{"conn_id": c.id, "broker": addr})
	c.readTimeout = conf.ReadTimeout
	c.writeTimeout = conf.WriteTimeout
	c.resp = make(chan response, respQueueDepth)
	c.readErr = make(chan error, 1)
	c.closed = make(chan struct{})
}

// open establishes the socket, performs the protocol handshake, and starts
// the read loop. It does not retry; retry policy belongs to the owner.
func (c *conn) open() error {
	conf := c.client.Config()
	sock, err := dialTimeout("tcp", c.addr, conf.DialTimeout)
	if err != nil {
		return &errspkg.ConnectionError{Addr: c.addr, Err: err}
	}
	if tlsConf := c.client.TLSConfig(); tlsConf != nil {
		sock = tls.Client(sock, tlsConf)
	}
	c.sock = sock
	c.bw = newBufWriter(sock)
	metricspkg.OpenConnections.Inc()

	if err := c.send(magicV2); err != nil {
		c.close()
		return &errspkg.ConnectionError{Addr: c.addr, Err: err}
	}

	go c.readLoop()

	if err := c.identify(conf.ClientID, conf.UserAgent); err != nil {
		c.close()
		return err
	}

	c.log.Debug("connection open", nil)
	return nil
}

// Addr reports the broker address this connection is bound to.
func (c *conn) Addr() string { return c.addr }

// isClosed reports whether close has run.
func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// doRequest runs one serialized request cycle for a fully encoded frame
// (command line plus body) and blocks until the broker acknowledges it.
func (c *conn) doRequest(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return errspkg.ErrConnClosed
	}
	c.clearResponses()
	if err := c.send(frame); err != nil {
		c.close()
		return err
	}
	return c.awaitAck()
}

// clearResponses empties the response queue so a stale response from a prior
// cycle can never be matched to the request about to be written.
func (c *conn) clearResponses() {
	for {
		select {
		case <-c.resp:
		default:
			return
		}
	}
}

func (c *conn) send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.bw.Write(frame)
	if err := c.bw.Flush(time.Now().Add(c.writeTimeout)); err != nil {
		return &errspkg.IOError{Op: "write", Err: err}
	}
	return nil
}

// awaitAck blocks on the response queue until the acknowledgement for the
// request just flushed arrives, the read loop fails, or the read timeout
// elapses.
func (c *conn) awaitAck() error {
	timeout := time.NewTimer(c.readTimeout)
	defer timeout.Stop()

	select {
	case r := <-c.resp:
		if r.frameType == frameTypeError {
			c.log.Debug("broker returned error frame", loggingpkg.LogFields{"frame": string(r.data)})
			return &errspkg.ProtocolError{Reason: string(r.data)}
		}
		if !bytes.Equal(r.data, okBody) {
			return &errspkg.ProtocolError{Reason: "unexpected response: " + string(r.data)}
		}
		return nil
	case err := <-c.readErr:
		c.close()
		return &errspkg.IOError{Op: "read", Err: err}
	case <-c.closed:
		return errspkg.ErrConnClosed
	case <-timeout.C:
		c.close()
		return &errspkg.IOError{Op: "read", Err: errspkg.ErrAckTimeout}
	}
}

// readLoop decodes inbound frames. Responses and error frames land on the
// response queue; heartbeats are answered with NOP and never enqueued so they
// cannot be misread as an acknowledgement; message frames belong to the
// subscriber-side protocol and are not expected here.
func (c *conn) readLoop() {
	for {
		frameType, data, err := readFrame(c.sock)
		if err != nil {
			select {
			case c.readErr <- err:
			default:
			}
			if !c.isClosed() {
				c.log.Debug("read loop ending", loggingpkg.LogFields{"error": err.Error()})
			}
			c.close()
			return
		}

		switch frameType {
		case frameTypeResponse:
			if bytes.Equal(data, heartbeatBody) {
				// Answer off the read loop: writing here would stall frame
				// intake behind a slow peer.
				go func() {
					if err := c.send(cmdNOP); err != nil {
						c.log.Error("heartbeat response failed", err, nil)
						c.close()
					}
				}()
				continue
			}
			c.enqueue(response{frameType, data})
		case frameTypeError:
			c.enqueue(response{frameType, data})
		case frameTypeMessage:
			c.log.Debug("dropping unexpected message frame", nil)
		default:
			c.log.Debug("dropping unknown frame", loggingpkg.LogFields{"frame_type": frameType})
		}
	}
}

func (c *conn) enqueue(r response) {
	select {
	case c.resp <- r:
	case <-c.closed:
	}
}

// identify sends the IDENTIFY handshake. The payload is the small metadata
// document brokers use to label this connection.
func (c *conn) identify(clientID, userAgent string) error {
	hostname, _ := os.Hostname()
	if clientID == "" {
		clientID = hostname
	}
	if userAgent == "" {
		userAgent = "nsqlink/" + libVersion
	}
	payload, err := jsoncodec.Marshal(identifyPayload{
		ClientID:  clientID,
		Hostname:  hostname,
		UserAgent: userAgent,
	})
	if err != nil {
		return &errspkg.ProtocolError{Reason: "encode identify: " + err.Error()}
	}
	frame := appendBody(appendCommand(nil, "IDENTIFY"), payload)
	return c.doRequest(frame)
}

type identifyPayload struct {
	ClientID  string `json:"client_id"`
	Hostname  string `json:"hostname"`
	UserAgent string `json:"user_agent"`
}

// close is idempotent: it transitions the connection to closed, releases the
// socket, and invokes the closure hook. No connection lock is held here, so
// the hook can safely touch owner state (the hook itself is still expected to
// defer real work to the worker pool).
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.sock != nil {
			c.sock.Close()
			metricspkg.OpenConnections.Dec()
		}
		c.log.Debug("connection closed", nil)
		if c.onClose != nil {
			c.onClose()
		}
	})
}
