package m328mon

import (
	"encoding/json"
	"sync"
	"time"

	"go328mon/internal/logger"
	"go328mon/internal/rpc"
)

const DefaultTick = 100 * time.Millisecond

const minTick = time.Millisecond

type Emitter interface {
	Emit(event string, data any) error
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type runState struct {
	ticker Ticker
	done   chan struct{}
}

// Driver paces "execute cycle" requests while in run mode. It owns the
// only timer; every path into Running cancels the previous one first, and
// no cycle is emitted once Stop has returned.
type Driver struct {
	emitter   Emitter
	log       *logger.Logger
	newTicker TickerFunc

	mu        sync.Mutex
	frequency float64
	run       *runState
	detached  bool
	onChange  []func(running bool)
}

func NewDriver(emitter Emitter, log *logger.Logger) *Driver {
	return &Driver{
		emitter:   emitter,
		log:       log,
		newTicker: newTimeTicker,
	}
}

// SetTicker must be called while Idle.
func (d *Driver) SetTicker(f TickerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f == nil {
		f = newTimeTicker
	}
	d.newTicker = f
}

func (d *Driver) OnChange(fn func(running bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

func Interval(hz float64) time.Duration {
	if hz <= 0 {
		return DefaultTick
	}
	iv := time.Duration(float64(time.Second) / hz)
	if iv < minTick {
		iv = minTick
	}
	return iv
}

func (d *Driver) Frequency() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frequency
}

func (d *Driver) SetFrequency(hz float64) {
	d.mu.Lock()
	d.frequency = hz
	if d.run != nil {
		d.startLocked()
	}
	d.mu.Unlock()
}

func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.run != nil
}

// Run starts run mode. It fails with rpc.ErrClosed once the attached bus
// has closed.
func (d *Driver) Run() error {
	d.mu.Lock()
	if d.detached {
		d.mu.Unlock()
		return rpc.ErrClosed
	}
	wasRunning := d.run != nil
	d.startLocked()
	d.mu.Unlock()
	d.log.Logf("driver", "run at %v", Interval(d.Frequency()))
	if !wasRunning {
		d.notify()
	}
	return nil
}

func (d *Driver) Stop() {
	d.mu.Lock()
	wasRunning := d.run != nil
	d.stopLocked()
	d.mu.Unlock()
	if wasRunning {
		d.log.Log("driver", "stop")
		d.notify()
	}
}

func (d *Driver) Attach(bus *rpc.Bus) {
	bus.On(rpc.EventExecuteStop, func(json.RawMessage) { d.Stop() })
	bus.On(rpc.EventResumed, func(json.RawMessage) { _ = d.Run() })
	bus.OnClose(func(error) { d.detach() })
}

func (d *Driver) detach() {
	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()
	d.Stop()
}

func (d *Driver) startLocked() {
	d.stopLocked()
	run := &runState{
		ticker: d.newTicker(Interval(d.frequency)),
		done:   make(chan struct{}),
	}
	d.run = run
	go d.loop(run)
}

func (d *Driver) stopLocked() {
	if d.run == nil {
		return
	}
	close(d.run.done)
	d.run.ticker.Stop()
	d.run = nil
}

func (d *Driver) loop(run *runState) {
	for {
		select {
		case <-run.done:
			return
		case <-run.ticker.C():
			if !d.tick(run) {
				return
			}
		}
	}
}

// tick emits while holding the lock so that Stop cannot return while a
// cycle request is in flight.
func (d *Driver) tick(run *runState) bool {
	d.mu.Lock()
	if d.run != run {
		d.mu.Unlock()
		return false
	}
	err := d.emitter.Emit(rpc.EventExecuteCycle, nil)
	if err == nil {
		d.mu.Unlock()
		return true
	}
	d.stopLocked()
	d.mu.Unlock()
	d.log.Logf("driver", "cycle request failed, stopping: %v", err)
	d.notify()
	return false
}

// notify reports the state at call time, so hooks racing with another
// transition still settle on the final state.
func (d *Driver) notify() {
	d.mu.Lock()
	running := d.run != nil
	hooks := append([]func(bool){}, d.onChange...)
	d.mu.Unlock()
	for _, fn := range hooks {
		fn(running)
	}
}
