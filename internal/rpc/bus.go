package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go328mon/internal/logger"
)

var ErrClosed = errors.New("connection closed")

type Handler func(data json.RawMessage)

// Bus multiplexes one Conn into named events. A bus lives as long as its
// connection; a new connection needs a new bus.
type Bus struct {
	conn Conn
	log  *logger.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	onOpen   []func()
	onClose  []func(error)
	closed   bool

	finishOnce sync.Once
	done       chan struct{}
}

func NewBus(conn Conn, log *logger.Logger) *Bus {
	return &Bus{
		conn:     conn,
		log:      log,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// On registers the handler for event, replacing any previous one. A nil
// handler removes it.
func (b *Bus) On(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler == nil {
		delete(b.handlers, event)
		return
	}
	b.handlers[event] = handler
}

func (b *Bus) handler(event string) Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[event]
}

func (b *Bus) OnOpen(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOpen = append(b.onOpen, fn)
}

// OnClose hooks run once, when the connection ends for any reason. err is
// nil when the bus was closed locally.
func (b *Bus) OnClose(fn func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = append(b.onClose, fn)
}

func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Done is closed once the close hooks have run.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Emit writes one envelope without waiting for any reply. Encoding errors
// are returned to the caller and nothing is sent.
func (b *Bus) Emit(event string, data any) error {
	msg, err := Encode(event, data)
	if err != nil {
		return err
	}
	if b.Closed() {
		return ErrClosed
	}
	if err := b.conn.WriteMessage(msg); err != nil {
		b.log.Logf("bus", "send %q failed: %v", event, err)
		return err
	}
	return nil
}

// Dispatch decodes one inbound message and runs its handler to completion.
// Unparseable messages are logged and returned as *ParseError; events
// without a handler are ignored. Nothing is dispatched once the bus closed.
func (b *Bus) Dispatch(raw []byte) error {
	if b.Closed() {
		return ErrClosed
	}
	env, err := Decode(raw)
	if err != nil {
		b.log.Log("bus", err.Error())
		return err
	}
	h := b.handler(env.Event)
	if h == nil {
		return nil
	}
	data := env.Data
	if !env.HasData() {
		data = json.RawMessage("null")
	}
	h(data)
	return nil
}

// Run is the read loop. Messages are dispatched one at a time in delivery
// order. It returns when the connection fails, Close is called, or ctx is
// done; the close hooks have run by then.
func (b *Bus) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	opens := append([]func(){}, b.onOpen...)
	b.mu.Unlock()
	for _, fn := range opens {
		fn()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = b.Close()
		case <-stop:
		}
	}()

	for {
		raw, err := b.conn.ReadMessage()
		if err != nil {
			if b.Closed() {
				b.finish(nil)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			b.log.Logf("rpc", "connection closed: %v", err)
			b.mu.Lock()
			b.closed = true
			b.mu.Unlock()
			_ = b.conn.Close()
			b.finish(err)
			return err
		}
		_ = b.Dispatch(raw)
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	err := b.conn.Close()
	b.finish(nil)
	return err
}

func (b *Bus) finish(err error) {
	b.finishOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		hooks := append([]func(error){}, b.onClose...)
		b.mu.Unlock()
		for _, fn := range hooks {
			fn(err)
		}
		close(b.done)
	})
}
