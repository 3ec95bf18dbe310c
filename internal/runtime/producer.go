package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
	metricspkg "github.com/nsqlink/nsqlink/internal/runtime/metrics"
)

func tracer() trace.Tracer {
	return otel.Tracer("nsqlink")
}

// Producer publishes messages to one broker over a lazily opened publish
// connection. A publish that fails surfaces its error to the caller and
// drops the connection so the next call dials a fresh one; retry policy
// stays with the caller.
type Producer struct {
	client *Client
	addr   string
	log    loggingpkg.ServiceLogger

	mu       sync.Mutex
	conn     *PubConn
	stopping atomic.Bool
}

// NewProducer constructs a producer bound to a broker address and registers
// it with the client for the shutdown protocol. The first publish dials.
func NewProducer(client *Client, addr string) *Producer {
	p := &Producer{
		client: client,
		addr:   addr,
		log:    client.Logger().With(loggingpkg.LogFields{"broker": addr}),
	}
	client.AddPublisher(p)
	return p
}

// Addr reports the broker address this producer publishes to.
func (p *Producer) Addr() string { return p.addr }

// Publish sends one message to topic and blocks until the broker
// acknowledges it.
func (p *Producer) Publish(ctx context.Context, topic string, data []byte) error {
	return p.publish(ctx, topic, "PUB", 1, func(conn *PubConn) error {
		return conn.Publish(topic, data)
	})
}

// PublishBatch sends the whole batch as one command, acknowledged as a unit.
func (p *Producer) PublishBatch(ctx context.Context, topic string, msgs [][]byte) error {
	return p.publish(ctx, topic, "MPUB", len(msgs), func(conn *PubConn) error {
		return conn.PublishBatch(topic, msgs)
	})
}

func (p *Producer) publish(ctx context.Context, topic, op string, count int, send func(*PubConn) error) error {
	if p.stopping.Load() {
		return errspkg.ErrPublisherStopped
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := tracer().Start(ctx, "nsqlink.publish", trace.WithAttributes(
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.operation", op),
		attribute.Int("messaging.batch.size", count),
	))
	defer span.End()

	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connLocked()
	if err == nil {
		if err = send(conn); err != nil {
			// The connection is suspect after any mid-request failure;
			// drop it so the next publish reconnects.
			p.conn = nil
			conn.Close()
		}
	}

	if err != nil {
		span.RecordError(err)
		metricspkg.PublishErrorsTotal.WithLabelValues(topic).Inc()
		return err
	}

	metricspkg.PublishedTotal.WithLabelValues(topic).Add(float64(count))
	metricspkg.PublishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return nil
}

func (p *Producer) connLocked() (*PubConn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	conn := NewPubConn(p.client, p.addr, p)
	if err := conn.Open(); err != nil {
		return nil, err
	}
	p.log.Debug("publish connection established", nil)
	p.conn = conn
	return conn, nil
}

// IsStopping reports whether Stop has begun. Connections check this before
// scheduling closure notifications.
func (p *Producer) IsStopping() bool { return p.stopping.Load() }

// Stop closes the producer's connection and rejects further publishes.
// Idempotent.
func (p *Producer) Stop() {
	if !p.stopping.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	p.log.Info("producer stopped", nil)
}

// ConnectionClosed runs on the worker pool after a publish connection dies
// outside a publish call (for example, the broker hung up). Dropping the
// reference is enough; the next publish reconnects.
func (p *Producer) ConnectionClosed(conn *PubConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.conn = nil
		p.log.Debug("publish connection lost", nil)
	}
}
