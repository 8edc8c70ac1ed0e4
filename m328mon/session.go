package m328mon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go328mon/internal/logger"
	"go328mon/internal/mcu"
	"go328mon/internal/rpc"
)

type Options struct {
	URL         string
	FrequencyHz float64
	Log         *logger.Logger
	NewTicker   TickerFunc
}

// Session ties one connection to one view: it owns the bus, the render
// gate and the execution driver.
type Session struct {
	bus    *rpc.Bus
	view   DebugView
	log    *logger.Logger
	store  *StateStore
	gate   *RenderGate
	driver *Driver

	mu       sync.Mutex
	rawState []func(json.RawMessage)
}

func NewSession(bus *rpc.Bus, view DebugView, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = logger.New(logger.DefaultMaxEntries)
	}
	s := &Session{
		bus:    bus,
		view:   view,
		log:    log,
		store:  newStateStore(opts.URL, opts.FrequencyHz),
		gate:   NewRenderGate(),
		driver: NewDriver(bus, log),
	}
	if opts.NewTicker != nil {
		s.driver.SetTicker(opts.NewTicker)
	}
	s.driver.SetFrequency(opts.FrequencyHz)
	s.driver.OnChange(s.runningChanged)
	s.driver.Attach(bus)
	s.registerHandlers()
	return s
}

// Connect dials url and builds a session over the new connection. The
// caller runs the bus loop with Run.
func Connect(ctx context.Context, view DebugView, timeout time.Duration, opts Options) (*Session, error) {
	if opts.URL == "" {
		opts.URL = rpc.DefaultURL
	}
	log := opts.Log
	if log == nil {
		log = logger.New(logger.DefaultMaxEntries)
		opts.Log = log
	}
	conn, err := rpc.Dial(ctx, opts.URL, timeout)
	if err != nil {
		log.Log("rpc", err.Error())
		return nil, err
	}
	return NewSession(rpc.NewBus(conn, log), view, opts), nil
}

func (s *Session) Bus() *rpc.Bus       { return s.bus }
func (s *Session) Driver() *Driver     { return s.driver }
func (s *Session) Gate() *RenderGate   { return s.gate }
func (s *Session) Log() *logger.Logger { return s.log }
func (s *Session) View() DebugView     { return s.view }
func (s *Session) State() AppStateData { return s.store.State() }

func (s *Session) Run(ctx context.Context) error {
	return s.bus.Run(ctx)
}

func (s *Session) Close() error {
	return s.bus.Close()
}

func (s *Session) registerHandlers() {
	s.bus.OnOpen(func() {
		s.store.setConnected(true)
		s.log.Logf("session", "connected to %s", s.store.State().URL)
		if c, ok := s.view.(ConnectionIndicator); ok {
			c.SetConnected(true)
		}
	})
	s.bus.OnClose(func(err error) {
		s.store.setConnected(false)
		if c, ok := s.view.(ConnectionIndicator); ok {
			c.SetConnected(false)
		}
		if err == nil {
			s.log.Log("session", "connection closed")
			return
		}
		s.store.setLastError(err.Error())
		s.view.AppendLog("Connection closed: " + err.Error())
	})

	s.bus.On(rpc.EventReady, func(data json.RawMessage) {
		s.store.setReady()
		s.gate.Reset()
		s.log.Logf("session", "server ready, got data %s", payloadText(data))
	})
	s.bus.On(rpc.EventPong, func(data json.RawMessage) {
		s.store.countPong()
		s.view.AppendLog("Server: " + payloadText(data))
	})
	s.bus.On(rpc.EventTest, func(data json.RawMessage) {
		s.store.countEcho()
		s.view.AppendLog("Proxy test: " + payloadText(data))
	})
	s.bus.On(rpc.EventLog, func(data json.RawMessage) {
		s.view.AppendLog(payloadText(data))
	})
	s.bus.On(rpc.EventConsole, func(data json.RawMessage) {
		s.view.AppendConsole(payloadText(data))
	})
	s.bus.On(rpc.EventState, s.handleState)
}

// OnRawState registers fn to see every "mcu state" payload before it is
// decoded.
func (s *Session) OnRawState(fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawState = append(s.rawState, fn)
}

func (s *Session) handleState(data json.RawMessage) {
	s.mu.Lock()
	hooks := append([]func(json.RawMessage){}, s.rawState...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(data)
	}
	st, err := mcu.Decode(data)
	if err != nil {
		var malformed *mcu.MalformedStateError
		if errors.As(err, &malformed) {
			s.store.setLastMalformed(malformed.Error())
		}
		s.log.Log("state", err.Error())
		return
	}
	rebuilt := s.gate.Apply(st, s.view)
	s.store.setMachine(st, rebuilt)
}

func (s *Session) runningChanged(running bool) {
	s.store.setRunning(running)
	if r, ok := s.view.(RunIndicator); ok {
		r.SetRunning(running)
	}
}

func payloadText(data json.RawMessage) string {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "null"
	}
	return trimmed
}

var ErrTimeout = errors.New("timed out")

func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) error {
	return s.WaitFor(ctx, timeout, "ready event", func(st AppStateData) bool { return st.Ready })
}

// WaitFor polls the session state until cond holds, the connection ends,
// ctx is done, or timeout elapses.
func (s *Session) WaitFor(ctx context.Context, timeout time.Duration, what string, cond func(AppStateData) bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		if cond(s.store.State()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.bus.Done():
			if cond(s.store.State()) {
				return nil
			}
			return rpc.ErrClosed
		case <-deadline.C:
			return fmt.Errorf("no %s from %s within %v: %w", what, s.store.State().URL, timeout, ErrTimeout)
		case <-poll.C:
		}
	}
}
