package runtime

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/nsqlink/nsqlink/internal/runtime/config"
	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
)

// fakeConsumerConn deregisters itself from the client when closed, the way a
// real consumer connection does once its in-flight messages are finished.
type fakeConsumerConn struct {
	client *Client

	mu     sync.Mutex
	closed bool
}

func (f *fakeConsumerConn) Close() {
	f.mu.Lock()
	was := f.closed
	f.closed = true
	f.mu.Unlock()
	if !was {
		f.client.ConnectionClosed(f)
	}
}

func (f *fakeConsumerConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type stubSubscriber struct {
	stopped atomic.Bool
}

func (s *stubSubscriber) Stop() { s.stopped.Store(true) }

func TestStopSubscribersDrainsNaturally(t *testing.T) {
	client := newTestClient(t, configpkg.Config{})
	sub := &stubSubscriber{}
	client.AddSubscriber(sub)

	conn := &fakeConsumerConn{client: client}
	client.AddConsumerConnection(conn)
	go func() {
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}()

	assert.True(t, client.StopSubscribers(time.Second), "a connection closing within the budget drains cleanly")
	assert.True(t, sub.stopped.Load())
}

func TestStopSubscribersForcesSlowConnections(t *testing.T) {
	client := newTestClient(t, configpkg.Config{})

	conn := &fakeConsumerConn{client: client}
	client.AddConsumerConnection(conn)

	start := time.Now()
	clean := client.StopSubscribers(50 * time.Millisecond)
	assert.False(t, clean, "a connection outliving the budget is unclean")
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, conn.isClosed(), "stragglers are force-closed")
}

func TestStopSubscribersWithEmptyRegistryReturnsImmediately(t *testing.T) {
	client := newTestClient(t, configpkg.Config{})

	start := time.Now()
	assert.True(t, client.StopSubscribers(5*time.Second))
	assert.Less(t, time.Since(start), time.Second, "no wait when nothing is registered")
}

// Many connections closing in parallel must drain the registry to empty and
// wake the blocked StopSubscribers call with no missed wakeups.
func TestConnectionClosedConcurrentDrain(t *testing.T) {
	client := newTestClient(t, configpkg.Config{})

	const n = 50
	conns := make([]*fakeConsumerConn, n)
	for i := range conns {
		conns[i] = &fakeConsumerConn{client: client}
		client.AddConsumerConnection(conns[i])
	}

	result := make(chan bool, 1)
	go func() { result <- client.StopSubscribers(5 * time.Second) }()

	// Give the waiter a moment to arm the monitor, then stampede.
	time.Sleep(20 * time.Millisecond)
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *fakeConsumerConn) {
			defer wg.Done()
			c.Close()
		}(conn)
	}
	wg.Wait()

	select {
	case clean := <-result:
		assert.True(t, clean, "the registry drained before the budget elapsed")
	case <-time.After(4 * time.Second):
		t.Fatal("StopSubscribers missed the wakeup")
	}
}

func TestStopRunsAllPhases(t *testing.T) {
	client := newTestClient(t, configpkg.Config{WorkerPoolSize: 2})
	pub := newStubPublisher()
	sub := &stubSubscriber{}
	client.AddPublisher(pub)
	client.AddSubscriber(sub)

	pool := client.WorkerPool()
	require.NotNil(t, pool)

	assert.True(t, client.Stop(2*time.Second))

	assert.True(t, sub.stopped.Load(), "subscribers stop first")
	assert.True(t, pub.IsStopping(), "publishers are stopped")
	assert.ErrorIs(t, pool.Submit(func() {}), errspkg.ErrPoolStopped, "worker pool is shut down")
	_, err := client.ScheduleOnce(time.Millisecond, func() {})
	assert.ErrorIs(t, err, errspkg.ErrSchedulerStopped, "scheduler is shut down")
}

func TestStopReportsBudgetOverrun(t *testing.T) {
	client := newTestClient(t, configpkg.Config{WorkerPoolSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, client.WorkerPool().Submit(func() {
		close(started)
		<-release
	}))
	<-started
	defer close(release)

	// The stuck worker blows the pool phase's budget; later phases still run
	// (each gets at least the floor) and the overall result is unclean.
	start := time.Now()
	assert.False(t, client.Stop(50*time.Millisecond))
	assert.Less(t, time.Since(start), 2*time.Second)
	_, err := client.ScheduleOnce(time.Millisecond, func() {})
	assert.ErrorIs(t, err, errspkg.ErrSchedulerStopped, "the scheduler phase ran despite the overrun")
}

func TestWorkerPoolCreateOnce(t *testing.T) {
	t.Run("lazy creation is sticky", func(t *testing.T) {
		client := newTestClient(t, configpkg.Config{WorkerPoolSize: 3})
		pool := client.WorkerPool()
		assert.Same(t, pool, client.WorkerPool())
		assert.Equal(t, 3, pool.Size())
	})

	t.Run("set after lazy creation fails", func(t *testing.T) {
		client := newTestClient(t, configpkg.Config{})
		pool := client.WorkerPool()

		replacement := NewWorkerPool(1, client.Logger())
		defer replacement.Shutdown(time.Second)

		var stateErr *errspkg.StateError
		require.ErrorAs(t, client.SetWorkerPool(replacement), &stateErr)
		assert.Same(t, pool, client.WorkerPool(), "the existing pool stays in place")
	})

	t.Run("set twice fails", func(t *testing.T) {
		client := newTestClient(t, configpkg.Config{})
		first := NewWorkerPool(1, client.Logger())
		defer first.Shutdown(time.Second)
		require.NoError(t, client.SetWorkerPool(first))

		second := NewWorkerPool(1, client.Logger())
		defer second.Shutdown(time.Second)
		var stateErr *errspkg.StateError
		require.ErrorAs(t, client.SetWorkerPool(second), &stateErr)
		assert.Same(t, first, client.WorkerPool())
	})

	t.Run("set after subscribing fails", func(t *testing.T) {
		client := newTestClient(t, configpkg.Config{})
		client.AddSubscriber(&stubSubscriber{})

		pool := NewWorkerPool(1, client.Logger())
		defer pool.Shutdown(time.Second)
		var stateErr *errspkg.StateError
		require.ErrorAs(t, client.SetWorkerPool(pool), &stateErr)
	})

	t.Run("nil pool is rejected", func(t *testing.T) {
		client := newTestClient(t, configpkg.Config{})
		var stateErr *errspkg.StateError
		require.ErrorAs(t, client.SetWorkerPool(nil), &stateErr)
	})
}

func TestSharedConfigAccessors(t *testing.T) {
	client := newTestClient(t, configpkg.Config{})

	assert.Nil(t, client.TLSConfig())
	assert.Nil(t, client.AuthSecret())

	client.SetAuthSecret([]byte("s3cret"))
	assert.Equal(t, []byte("s3cret"), client.AuthSecret())
}

func TestDefaultClientIsShared(t *testing.T) {
	assert.Same(t, DefaultClient(), DefaultClient())
}

func TestNewClientRequiresLogger(t *testing.T) {
	assert.Panics(t, func() { NewClient(configpkg.Config{}, nil) })
}
