package m328mon

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"go328mon/internal/mcu"
	"go328mon/internal/rpc"
)

type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	sent   []rpc.Envelope
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 32), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	env, err := rpc.Decode(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(event string, data any) {
	msg, err := rpc.Encode(event, data)
	if err != nil {
		panic(err)
	}
	c.in <- msg
}

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Event)
	}
	return out
}

func (c *fakeConn) last() (rpc.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return rpc.Envelope{}, false
	}
	return c.sent[len(c.sent)-1], true
}

func (c *fakeConn) count(event string) int {
	n := 0
	for _, e := range c.events() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
	period  time.Duration
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTicker) fire() {
	t.ch <- time.Now()
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 4), period: d}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) all() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.tickers...)
}

func (f *tickerFactory) live() int {
	n := 0
	for _, t := range f.all() {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

func (f *tickerFactory) latest() *fakeTicker {
	all := f.all()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type countingEmitter struct {
	mu     sync.Mutex
	events []string
	fail   error
}

func (e *countingEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.events = append(e.events, event)
	return nil
}

func (e *countingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *countingEmitter) failWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

var errEmit = errors.New("emit failed")

// recordingView records every call for assertions.
type recordingView struct {
	mu        sync.Mutex
	states    []mcu.MachineState
	stacks    []mcu.MachineState
	logs      []string
	console   []string
	running   []bool
	connected []bool
}

func (v *recordingView) ShowState(st mcu.MachineState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, st)
}

func (v *recordingView) ShowStack(st mcu.MachineState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stacks = append(v.stacks, st)
}

func (v *recordingView) AppendLog(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logs = append(v.logs, line)
}

func (v *recordingView) AppendConsole(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.console = append(v.console, text)
}

func (v *recordingView) SetRunning(running bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.running = append(v.running, running)
}

func (v *recordingView) SetConnected(connected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = append(v.connected, connected)
}

func (v *recordingView) counts() (states, stacks int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.states), len(v.stacks)
}

func (v *recordingView) logLines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.logs...)
}

func (v *recordingView) consoleText() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.console...)
}

func (v *recordingView) connectedCalls() []bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]bool(nil), v.connected...)
}

func (v *recordingView) lastRunning() (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.running) == 0 {
		return false, false
	}
	return v.running[len(v.running)-1], true
}

// statePayload builds the double-encoded "mcu state" payload the proxy
// sends. Registers live at data_memory[0:32].
func statePayload(pc, sp, ram int, mem map[int]int) string {
	memory := make([]int, 2*mcu.KB+ram+1)
	for addr, v := range mem {
		memory[addr] = v
	}
	raw, err := json.Marshal(map[string]any{
		"pc":          pc,
		"sp":          sp,
		"R":           0,
		"RAM":         ram,
		"data_memory": memory,
	})
	if err != nil {
		panic(err)
	}
	return string(raw)
}
