// Package watermill adapts a nsqlink producer to Watermill's publisher
// interface so Watermill routers and components can publish through this
// client without knowing about the wire protocol.
package watermill

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	runtimepkg "github.com/nsqlink/nsqlink/internal/runtime"
)

// ProtocolPublisher is the producer surface the adapter needs. It is
// satisfied by *runtime.Producer and easy to fake in tests.
type ProtocolPublisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
	PublishBatch(ctx context.Context, topic string, msgs [][]byte) error
	Stop()
}

var _ ProtocolPublisher = (*runtimepkg.Producer)(nil)

// Publisher implements message.Publisher on top of a producer.
type Publisher struct {
	producer ProtocolPublisher
}

var _ message.Publisher = (*Publisher)(nil)

// NewPublisher wraps producer in a Watermill-compatible publisher.
func NewPublisher(producer ProtocolPublisher) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("nsqlink: producer is required")
	}
	return &Publisher{producer: producer}, nil
}

// Publish sends the messages to topic. A single message maps to one PUB
// command; more than one maps to a single MPUB batch acknowledged as a unit.
// Watermill metadata is not wired: the protocol carries opaque payloads.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ctx := messages[0].Context()
	if len(messages) == 1 {
		return p.producer.Publish(ctx, topic, messages[0].Payload)
	}
	payloads := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, msg.Payload)
	}
	return p.producer.PublishBatch(ctx, topic, payloads)
}

// Close stops the underlying producer.
func (p *Publisher) Close() error {
	p.producer.Stop()
	return nil
}
