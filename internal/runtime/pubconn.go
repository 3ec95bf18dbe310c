package runtime

import (
	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

// PubConn is a publish connection: one socket dedicated to PUB/MPUB traffic,
// owned by the Publisher that created it. Publishes ride the base
// connection's serialized request cycle, so at most one publish is in flight
// per connection.
type PubConn struct {
	conn
	publisher Publisher
}

// NewPubConn constructs a publish connection bound to a broker address. Call
// Open before publishing.
func NewPubConn(client *Client, addr string, publisher Publisher) *PubConn {
	c := &PubConn{publisher: publisher}
	c.conn.init(client, addr, client.Logger())
	c.conn.onClose = c.notifyClosed
	return c
}

// Open establishes the socket and handshake.
func (c *PubConn) Open() error {
	return c.open()
}

// Publish sends one message to topic and blocks until the broker
// acknowledges it.
func (c *PubConn) Publish(topic string, data []byte) error {
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if len(data) == 0 {
		return errspkg.ErrMessageRequired
	}
	frame := appendBody(appendCommand(nil, "PUB", topic), data)
	return c.doRequest(frame)
}

// PublishBatch sends every message to topic as one MPUB command and blocks
// until the broker acknowledges the whole batch.
func (c *PubConn) PublishBatch(topic string, msgs [][]byte) error {
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if len(msgs) == 0 {
		return errspkg.ErrNoMessages
	}
	for _, m := range msgs {
		if len(m) == 0 {
			return errspkg.ErrMessageRequired
		}
	}
	frame := append(appendCommand(nil, "MPUB", topic), batchBody(msgs)...)
	return c.doRequest(frame)
}

// Close tears the connection down. Idempotent.
func (c *PubConn) Close() {
	c.close()
}

// notifyClosed delivers the closure notification to the owning publisher on
// the worker pool, never inline: the goroutine closing this connection may
// hold locks the publisher's bookkeeping needs. The enqueue itself must not
// block either, or a saturated pool would stall the close and every lock
// above it, so a full or stopped pool is logged and the notification dropped.
func (c *PubConn) notifyClosed() {
	if c.publisher == nil || c.publisher.IsStopping() {
		return
	}
	if err := c.client.WorkerPool().TrySubmit(func() { c.publisher.ConnectionClosed(c) }); err != nil {
		c.log.Error("closure notification dropped", err, loggingpkg.LogFields{"broker": c.addr})
	}
}
