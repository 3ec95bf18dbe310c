package runtime

import (
	"crypto/tls"
	"log/slog"
	"sync"
	"time"

	configpkg "github.com/nsqlink/nsqlink/internal/runtime/config"
	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

const libVersion = "0.4.0"

// minPhaseWait is the floor applied to the remaining shutdown budget before
// each phase: a phase that overran never starves the phases after it.
const minPhaseWait = 100 * time.Millisecond

// Publisher is the contract the client requires of publishers: stop on
// demand, report whether a stop is underway, and accept closure notifications
// for connections they own.
type Publisher interface {
	Stop()
	IsStopping() bool
	ConnectionClosed(conn *PubConn)
}

// Subscriber is the contract the client requires of subscribers.
type Subscriber interface {
	Stop()
}

// ConsumerConnection is a subscriber-owned connection tracked by the client
// so shutdown can wait for in-flight consumer work to drain before the
// worker pool goes away.
type ConsumerConnection interface {
	Close()
}

// Client coordinates every publisher, subscriber, and consumer connection in
// the process. It owns the shared worker pool and scheduler and implements
// the phased shutdown protocol. All methods are safe for concurrent use.
type Client struct {
	conf  configpkg.Config
	log   loggingpkg.ServiceLogger
	sched *Scheduler

	mu          sync.Mutex // lifecycle and registry of publishers/subscribers
	publishers  map[Publisher]struct{}
	subscribers map[Subscriber]struct{}

	subMu    sync.Mutex // consumer-connection monitor
	subConns map[ConsumerConnection]struct{}
	drained  chan struct{} // armed while StopSubscribers waits, closed on empty

	poolMu      sync.Mutex
	pool        *WorkerPool
	subscribing bool

	confMu     sync.RWMutex // shared TLS config and auth secret
	tlsConf    *tls.Config
	authSecret []byte
}

// NewClient constructs a coordinator with the supplied configuration.
func NewClient(conf configpkg.Config, log loggingpkg.ServiceLogger) *Client {
	if log == nil {
		panic("nsqlink: client logger cannot be nil")
	}
	conf = conf.WithDefaults()
	return &Client{
		conf:        conf,
		log:         log,
		sched:       NewScheduler(log),
		publishers:  make(map[Publisher]struct{}),
		subscribers: make(map[Subscriber]struct{}),
		subConns:    make(map[ConsumerConnection]struct{}),
		tlsConf:     conf.TLS,
		authSecret:  conf.AuthSecret,
	}
}

var (
	defaultClientOnce sync.Once
	defaultClient     *Client
)

// DefaultClient returns the process-wide shared client, created on first use
// with default configuration and slog's default logger. It follows the same
// lifecycle rules as any explicitly constructed instance.
func DefaultClient() *Client {
	defaultClientOnce.Do(func() {
		defaultClient = NewClient(configpkg.Config{}, loggingpkg.NewSlogServiceLogger(slog.Default()))
	})
	return defaultClient
}

// Config returns the client configuration (defaults applied). The returned
// value is a copy; TLS config and auth secret have live accessors of their
// own.
func (c *Client) Config() configpkg.Config { return c.conf }

// Logger returns the client's logger.
func (c *Client) Logger() loggingpkg.ServiceLogger { return c.log }

// Stop shuts the whole client down in strict order: subscribers first
// (waiting for in-flight consumer work), then the worker pool, then every
// publisher, then the scheduler. wait is a soft budget: the remaining budget
// is recomputed before each phase and floored at minPhaseWait, so later
// phases always get a chance to run even when an earlier phase overran.
// Reports true only if every phase completed within its budget; false means
// shutdown proceeded but some work may have been forced.
func (c *Client) Stop(wait time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info("stopping client", nil)
	start := time.Now()
	clean := c.stopSubscribersLocked(wait)

	c.poolMu.Lock()
	pool := c.pool
	c.poolMu.Unlock()
	if pool != nil {
		clean = pool.Shutdown(remainingBudget(wait, start)) && clean
	}

	for pub := range c.publishers {
		pub.Stop()
	}

	clean = c.sched.Shutdown(remainingBudget(wait, start)) && clean

	c.log.Info("client stopped", loggingpkg.LogFields{"clean": clean})
	return clean
}

// StopSubscribers signals every subscriber to stop accepting new work, waits
// up to wait for registered consumer connections to drain, then force-closes
// whatever is left. Reports true iff the registry drained on its own. Useful
// when the application must act between consumer and publisher shutdown;
// call Stop afterwards to finish the job.
func (c *Client) StopSubscribers(wait time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopSubscribersLocked(wait)
}

func (c *Client) stopSubscribersLocked(wait time.Duration) bool {
	for sub := range c.subscribers {
		sub.Stop()
	}

	c.subMu.Lock()
	var drained chan struct{}
	if len(c.subConns) > 0 {
		if c.drained == nil {
			c.drained = make(chan struct{})
		}
		drained = c.drained
	}
	c.subMu.Unlock()

	if drained != nil {
		c.log.Info("waiting for in-flight consumer work", nil)
		// One bounded wait, not a poll loop: the budget is a soft grace
		// period and we proceed regardless of how the wait ends.
		select {
		case <-drained:
		case <-time.After(wait):
		}
	}

	c.subMu.Lock()
	clean := len(c.subConns) == 0
	remaining := make([]ConsumerConnection, 0, len(c.subConns))
	for conn := range c.subConns {
		remaining = append(remaining, conn)
	}
	c.subMu.Unlock()

	// Force-close outside the monitor: Close implementations call back into
	// ConnectionClosed.
	for _, conn := range remaining {
		conn.Close()
	}
	return clean
}

// ConnectionClosed removes a consumer connection from the registry and, once
// the registry empties, wakes every goroutine blocked in StopSubscribers.
// Safe to call concurrently from many connection goroutines and from the
// shutdown path itself.
func (c *Client) ConnectionClosed(conn ConsumerConnection) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subConns, conn)
	if len(c.subConns) == 0 && c.drained != nil {
		close(c.drained)
		c.drained = nil
	}
}

// AddPublisher registers a publisher for the shutdown protocol.
func (c *Client) AddPublisher(p Publisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishers[p] = struct{}{}
}

// AddSubscriber registers a subscriber for the shutdown protocol. After the
// first subscriber is registered the worker pool can no longer be replaced.
func (c *Client) AddSubscriber(s Subscriber) {
	c.poolMu.Lock()
	c.subscribing = true
	c.poolMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[s] = struct{}{}
}

// AddConsumerConnection registers an active consumer connection for lifecycle
// accounting. The client never mutates the connection; ownership stays with
// the subscriber that created it.
func (c *Client) AddConsumerConnection(conn ConsumerConnection) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subConns[conn] = struct{}{}
}

// WorkerPool returns the shared pool, creating it on first use at the
// configured size. Once created the pool is fixed for the life of the
// client.
func (c *Client) WorkerPool() *WorkerPool {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool == nil {
		c.pool = NewWorkerPool(c.conf.WorkerPoolSize, c.log)
	}
	return c.pool
}

// SetWorkerPool installs a caller-supplied pool. It must happen before the
// pool is first used and before any subscriber registers; afterwards it
// fails with a StateError and the existing pool stays in place.
func (c *Client) SetWorkerPool(p *WorkerPool) error {
	if p == nil {
		return &errspkg.StateError{Op: "set worker pool", Reason: "pool cannot be nil"}
	}
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool != nil {
		return &errspkg.StateError{Op: "set worker pool", Reason: "pool already created; it can only be set once, before first use"}
	}
	if c.subscribing {
		return &errspkg.StateError{Op: "set worker pool", Reason: "subscribing has already begun"}
	}
	c.pool = p
	return nil
}

// ScheduleOnce runs task once after delay on the client's scheduler.
func (c *Client) ScheduleOnce(delay time.Duration, task func()) (*ScheduledTask, error) {
	return c.sched.ScheduleOnce(delay, task)
}

// ScheduleRepeating runs task repeatedly, optionally jittering the initial
// delay so per-connection timers spread out.
func (c *Client) ScheduleRepeating(initial, period time.Duration, jitter bool, task func()) (*ScheduledTask, error) {
	return c.sched.ScheduleRepeating(initial, period, jitter, task)
}

// TLSConfig returns the shared TLS configuration, or nil for plaintext
// connections.
func (c *Client) TLSConfig() *tls.Config {
	c.confMu.RLock()
	defer c.confMu.RUnlock()
	return c.tlsConf
}

// SetTLSConfig replaces the shared TLS configuration. Connections already
// open are unaffected.
func (c *Client) SetTLSConfig(conf *tls.Config) {
	c.confMu.Lock()
	defer c.confMu.Unlock()
	c.tlsConf = conf
}

// AuthSecret returns the shared authorization secret.
func (c *Client) AuthSecret() []byte {
	c.confMu.RLock()
	defer c.confMu.RUnlock()
	return c.authSecret
}

// SetAuthSecret replaces the shared authorization secret.
func (c *Client) SetAuthSecret(secret []byte) {
	c.confMu.Lock()
	defer c.confMu.Unlock()
	c.authSecret = secret
}

// remainingBudget recomputes the leftover shutdown budget, floored at
// minPhaseWait.
func remainingBudget(budget time.Duration, start time.Time) time.Duration {
	left := budget - time.Since(start)
	if left < minPhaseWait {
		left = minPhaseWait
	}
	return left
}
