package m328mon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go328mon/internal/logger"
	"go328mon/internal/rpc"
)

const (
	waitFor = time.Second
	poll    = 5 * time.Millisecond
)

func newTestDriver(t *testing.T) (*Driver, *countingEmitter, *tickerFactory) {
	t.Helper()
	em := &countingEmitter{}
	tf := &tickerFactory{}
	d := NewDriver(em, logger.New(64))
	d.SetTicker(tf.New)
	t.Cleanup(d.Stop)
	return d, em, tf
}

func TestIntervalDefaultsAndClamps(t *testing.T) {
	assert.Equal(t, DefaultTick, Interval(0))
	assert.Equal(t, DefaultTick, Interval(-3))
	assert.Equal(t, 100*time.Millisecond, Interval(10))
	assert.Equal(t, 20*time.Millisecond, Interval(50))
	assert.Equal(t, time.Millisecond, Interval(1e6))
}

func TestDriverTickEmitsCycle(t *testing.T) {
	d, em, tf := newTestDriver(t)
	d.Run()
	require.True(t, d.Running())
	tf.latest().fire()
	require.Eventually(t, func() bool { return em.count() == 1 }, waitFor, poll)
	tf.latest().fire()
	require.Eventually(t, func() bool { return em.count() == 2 }, waitFor, poll)
	assert.Equal(t, rpc.EventExecuteCycle, em.events[0])
}

func TestDriverRunTwiceKeepsOneTimer(t *testing.T) {
	d, em, tf := newTestDriver(t)
	d.Run()
	first := tf.latest()
	d.Run()
	second := tf.latest()

	require.Len(t, tf.all(), 2)
	assert.True(t, first.isStopped())
	assert.Equal(t, 1, tf.live())

	first.fire()
	require.Never(t, func() bool { return em.count() > 0 }, 50*time.Millisecond, poll)
	second.fire()
	require.Eventually(t, func() bool { return em.count() == 1 }, waitFor, poll)
}

func TestDriverStopSilencesTimer(t *testing.T) {
	d, em, tf := newTestDriver(t)
	d.Run()
	d.Stop()
	assert.False(t, d.Running())
	assert.Equal(t, 0, tf.live())

	tf.latest().fire()
	require.Never(t, func() bool { return em.count() > 0 }, 50*time.Millisecond, poll)
}

func TestDriverStopWhileIdleIsNoop(t *testing.T) {
	d, _, _ := newTestDriver(t)
	var calls []bool
	d.OnChange(func(running bool) { calls = append(calls, running) })
	d.Stop()
	assert.Empty(t, calls)
}

func TestDriverOnChangeReportsTransitions(t *testing.T) {
	d, _, _ := newTestDriver(t)
	var mu sync.Mutex
	var calls []bool
	d.OnChange(func(running bool) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, running)
	})
	d.Run()
	d.Run()
	d.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, calls)
}

func TestDriverEmitErrorStops(t *testing.T) {
	d, em, tf := newTestDriver(t)
	stopped := make(chan struct{})
	d.OnChange(func(running bool) {
		if !running {
			close(stopped)
		}
	})
	em.failWith(errEmit)
	d.Run()
	tf.latest().fire()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("driver kept running after a failed cycle request")
	}
	assert.False(t, d.Running())
	assert.Equal(t, 0, tf.live())
}

func TestDriverSetFrequencyRestartsTimer(t *testing.T) {
	d, _, tf := newTestDriver(t)
	d.SetFrequency(5)
	assert.Empty(t, tf.all())

	d.Run()
	assert.Equal(t, 200*time.Millisecond, tf.latest().period)
	d.SetFrequency(50)
	require.Len(t, tf.all(), 2)
	assert.Equal(t, 20*time.Millisecond, tf.latest().period)
	assert.Equal(t, 1, tf.live())
	assert.True(t, d.Running())
	assert.Equal(t, 50.0, d.Frequency())
}

func TestDriverFollowsRemoteTransitions(t *testing.T) {
	conn := newFakeConn()
	log := logger.New(64)
	bus := rpc.NewBus(conn, log)
	tf := &tickerFactory{}
	d := NewDriver(bus, log)
	d.SetTicker(tf.New)
	d.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()

	conn.push(rpc.EventResumed, nil)
	require.Eventually(t, d.Running, waitFor, poll)

	tf.latest().fire()
	require.Eventually(t, func() bool { return conn.count(rpc.EventExecuteCycle) == 1 }, waitFor, poll)

	conn.push(rpc.EventExecuteStop, nil)
	require.Eventually(t, func() bool { return !d.Running() }, waitFor, poll)
	assert.Equal(t, 0, tf.live())
}

func TestDriverStopsOnDisconnect(t *testing.T) {
	conn := newFakeConn()
	log := logger.New(64)
	bus := rpc.NewBus(conn, log)
	tf := &tickerFactory{}
	d := NewDriver(bus, log)
	d.SetTicker(tf.New)
	d.Attach(bus)

	done := make(chan error, 1)
	go func() { done <- bus.Run(context.Background()) }()

	d.Run()
	close(conn.in)
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("bus did not notice the disconnect")
	}
	assert.False(t, d.Running())
	assert.Equal(t, 0, tf.live())

	tf.latest().fire()
	require.Never(t, func() bool { return conn.count(rpc.EventExecuteCycle) > 0 }, 50*time.Millisecond, poll)
}

func TestDriverIgnoresResumeAfterClose(t *testing.T) {
	conn := newFakeConn()
	log := logger.New(64)
	bus := rpc.NewBus(conn, log)
	tf := &tickerFactory{}
	d := NewDriver(bus, log)
	d.SetTicker(tf.New)
	d.Attach(bus)

	require.NoError(t, bus.Close())
	msg, err := rpc.Encode(rpc.EventResumed, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Dispatch(msg), rpc.ErrClosed)
	assert.False(t, d.Running())
	assert.Empty(t, tf.all())

	assert.ErrorIs(t, d.Run(), rpc.ErrClosed)
	assert.False(t, d.Running())
	assert.Equal(t, 0, tf.live())
}
