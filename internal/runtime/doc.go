/*
Package runtime implements the connection and lifecycle core of nsqlink.

# Architecture Overview

The runtime is organised around one coordinator and many connections. A
Client tracks every Publisher, Subscriber, and active consumer connection in
the process, owns the shared worker pool and scheduler, and runs the phased
shutdown protocol. Connections each own one socket to one broker and
serialize the request/acknowledgement cycle so concurrent publishers sharing
a socket can never have responses misattributed.

# Package Structure

## Coordinator (client.go)

The Client struct is the central registry and shutdown orchestrator:
  - Registries of publishers, subscribers, and consumer connections
  - Drain-wait monitor over the consumer-connection set
  - Create-once worker pool and shared scheduler
  - Shared TLS configuration and auth secret

Stop runs the phases in strict order: subscribers (waiting for in-flight
consumer work), worker pool, publishers, scheduler. The budget is soft; the
remaining time is recomputed before each phase and floored so later phases
always get a chance.

## Connections (conn.go, pubconn.go, protocol.go)

conn owns the socket, the response queue, and the serialized request cycle.
PubConn layers PUB and MPUB framing on top and delivers its closure
notification to the owning publisher via the worker pool, never inline.
protocol.go holds the wire encoding: command lines, length-prefixed bodies,
and frame decoding.

## Scheduling (scheduler.go)

Run-once and repeating timers with jittered initial delays. Task bodies run
under a recover guard; a failing task is logged and keeps its schedule.

## Worker pool (pool.go)

A bounded goroutine pool for consumer handlers and closure notifications,
lazily created by the Client on first use and fixed from then on.

## Producing (producer.go)

Producer is a publisher bound to one broker: it lazily dials a PubConn,
serializes publishes through it, and drops the connection on failure so the
next call reconnects.

# Sub-packages

  - config/: client configuration with validation
  - errors/: sentinel errors and the error taxonomy
  - ids/: ULID generation for connection identifiers
  - jsoncodec/: JSON marshaling for the IDENTIFY payload
  - logging/: logger interface and adapters
  - metrics/: Prometheus instruments
*/
package runtime
