package m328mon

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go328mon/internal/logger"
	"go328mon/internal/rpc"
)

type sessionFixture struct {
	conn    *fakeConn
	view    *recordingView
	tickers *tickerFactory
	session *Session
	done    chan error
}

func startSession(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		conn:    newFakeConn(),
		view:    &recordingView{},
		tickers: &tickerFactory{},
		done:    make(chan error, 1),
	}
	log := logger.New(128)
	f.session = NewSession(rpc.NewBus(f.conn, log), f.view, Options{
		URL:       "ws://test",
		Log:       log,
		NewTicker: f.tickers.New,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { f.done <- f.session.Run(ctx) }()
	require.Eventually(t, func() bool { return f.session.State().Connected }, waitFor, poll)
	return f
}

func (f *sessionFixture) hasTag(tag string) bool {
	for _, e := range f.session.Log().Entries() {
		if e.Tag == tag {
			return true
		}
	}
	return false
}

func TestSessionRoutesTextEvents(t *testing.T) {
	f := startSession(t)
	f.conn.push(rpc.EventReady, "Hello")
	f.conn.push(rpc.EventLog, "assembled 12 words")
	f.conn.push(rpc.EventConsole, "A")
	f.conn.push(rpc.EventPong, "pong")

	require.Eventually(t, func() bool { return len(f.view.logLines()) == 2 }, waitFor, poll)
	assert.Equal(t, []string{"assembled 12 words", "Server: pong"}, f.view.logLines())
	assert.Equal(t, []string{"A"}, f.view.consoleText())
	assert.True(t, f.session.State().Ready)
}

func TestSessionRendersThroughGate(t *testing.T) {
	f := startSession(t)
	snap := statePayload(3, 2045, 0, map[int]int{0: 0x0F, 2047: 0xBEEF, 2046: 0xCAFE})
	f.conn.push(rpc.EventState, snap)
	f.conn.push(rpc.EventState, statePayload(4, 2045, 0, map[int]int{2047: 0xBEEF, 2046: 0xCAFE}))
	f.conn.push(rpc.EventState, statePayload(5, 2047, 0, nil))

	require.Eventually(t, func() bool { return f.session.State().Snapshots == 3 }, waitFor, poll)
	states, stacks := f.view.counts()
	assert.Equal(t, 3, states)
	assert.Equal(t, 2, stacks)

	st := f.session.State()
	assert.Equal(t, uint64(2), st.StackRebuilds)
	assert.True(t, st.HasMachine)
	assert.Equal(t, uint16(5), st.Machine.PC)
	assert.Empty(t, st.Machine.Stack)

	f.view.mu.Lock()
	defer f.view.mu.Unlock()
	assert.Equal(t, []uint16{0xBEEF, 0xCAFE}, f.view.stacks[0].Stack)
	assert.Equal(t, uint16(0x0F), f.view.states[0].Registers[0])
}

func TestSessionDropsMalformedState(t *testing.T) {
	f := startSession(t)
	f.conn.push(rpc.EventState, `{"pc": 1}`)
	f.conn.push(rpc.EventState, statePayload(1, 2047, 0, nil))

	require.Eventually(t, func() bool { return f.session.State().Snapshots == 1 }, waitFor, poll)
	states, _ := f.view.counts()
	assert.Equal(t, 1, states)
	assert.Contains(t, f.session.State().LastMalformed, "sp")
	assert.True(t, f.hasTag("state"))
}

func TestSessionSurvivesGarbage(t *testing.T) {
	f := startSession(t)
	f.conn.in <- []byte("not json")
	f.conn.push(rpc.EventLog, "after")
	require.Eventually(t, func() bool { return len(f.view.logLines()) == 1 }, waitFor, poll)
	assert.True(t, f.hasTag("bus"))
}

func TestSessionRunIndicatorFollowsDriver(t *testing.T) {
	f := startSession(t)
	f.conn.push(rpc.EventResumed, nil)
	require.Eventually(t, func() bool { return f.session.State().Running }, waitFor, poll)
	running, ok := f.view.lastRunning()
	assert.True(t, ok)
	assert.True(t, running)

	f.conn.push(rpc.EventExecuteStop, nil)
	require.Eventually(t, func() bool { return !f.session.State().Running }, waitFor, poll)
	running, _ = f.view.lastRunning()
	assert.False(t, running)
}

func TestSessionRemoteDisconnect(t *testing.T) {
	f := startSession(t)
	f.session.Driver().Run()
	close(f.conn.in)

	select {
	case err := <-f.done:
		require.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
	st := f.session.State()
	assert.False(t, st.Connected)
	assert.False(t, st.Running)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, []bool{true, false}, f.view.connectedCalls())
	require.NotEmpty(t, f.view.logLines())
	assert.Contains(t, f.view.logLines()[0], "Connection closed")
	assert.Equal(t, 0, f.tickers.live())
}

func TestSessionLocalClose(t *testing.T) {
	f := startSession(t)
	require.NoError(t, f.session.Close())
	select {
	case err := <-f.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
	assert.Empty(t, f.view.logLines())
	assert.Empty(t, f.session.State().LastError)
	assert.ErrorIs(t, f.session.Bus().Emit(rpc.EventPing, nil), rpc.ErrClosed)
}

func TestPayloadText(t *testing.T) {
	assert.Equal(t, "hi", payloadText([]byte(`"hi"`)))
	assert.Equal(t, `{"a":1}`, payloadText([]byte(` {"a":1} `)))
	assert.Equal(t, "null", payloadText(nil))
}

func TestSessionWaitFor(t *testing.T) {
	f := startSession(t)
	ctx := context.Background()
	err := f.session.WaitReady(ctx, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	f.conn.push(rpc.EventReady, "Hello")
	require.NoError(t, f.session.WaitReady(ctx, waitFor))

	f.conn.push(rpc.EventPong, "pong")
	require.NoError(t, f.session.WaitFor(ctx, waitFor, "pong", func(st AppStateData) bool { return st.Pongs == 1 }))

	require.NoError(t, f.session.Close())
	err = f.session.WaitFor(ctx, waitFor, "echo", func(st AppStateData) bool { return st.Echoes > 0 })
	assert.ErrorIs(t, err, rpc.ErrClosed)
}

func TestSessionRawStateHook(t *testing.T) {
	f := startSession(t)
	var mu sync.Mutex
	var raws []string
	f.session.OnRawState(func(data json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		raws = append(raws, string(data))
	})
	f.conn.push(rpc.EventState, "garbage")
	f.conn.push(rpc.EventState, statePayload(0, 2047, 0, nil))
	require.Eventually(t, func() bool { return f.session.State().Snapshots == 1 }, waitFor, poll)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, raws, 2)
}
