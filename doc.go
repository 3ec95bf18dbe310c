// Package nsqlink is a client runtime for an NSQ-style message-queue
// protocol: it manages persistent TCP connections to broker nodes, frames
// and sends protocol commands with strict per-connection
// request/acknowledgement ordering, and shuts the whole process down cleanly
// without losing in-flight consumer work.
//
// A Client is the process-wide coordinator. It registers every Publisher,
// Subscriber, and active consumer connection, owns the worker pool that runs
// consumer handlers, and owns the scheduler used for jittered housekeeping
// timers. Client.Stop tears everything down in strict order within a
// caller-supplied soft time budget: subscribers drain first, then the worker
// pool, then publishers, then the scheduler.
//
// Producer is the publishing entry point: it lazily opens a publish
// connection to one broker and sends PUB (single message) or MPUB (batch)
// commands, each blocking until the broker acknowledges. Publish errors
// surface synchronously; there is no hidden retry. A minimal setup:
//
//	logger := nsqlink.NewSlogServiceLogger(slog.Default())
//	client := nsqlink.NewClient(nsqlink.Config{}, logger)
//	producer := nsqlink.NewProducer(client, "127.0.0.1:4150")
//
//	if err := producer.Publish(ctx, "events", payload); err != nil {
//		// the broker did not acknowledge; retry policy is yours
//	}
//
//	client.Stop(3 * time.Second)
//
// The transport/watermill subpackage adapts a Producer to Watermill's
// message.Publisher interface so Watermill routers can publish through this
// client.
package nsqlink
