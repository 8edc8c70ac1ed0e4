package rpc

type Event = string

// Requests sent to the proxy.
const (
	EventCompileAsm   Event = "compile asm"
	EventCompileC     Event = "compile c"
	EventExecuteCycle Event = "execute cycle"
	EventResume       Event = "mcu resume"
	EventReset        Event = "reset mcu"
	EventInterrupt    Event = "interrupt"
	EventTest         Event = "test"
	EventPing         Event = "ping"
)

// Notifications received from the proxy.
const (
	EventReady       Event = "ready"
	EventPong        Event = "pong"
	EventLog         Event = "log"
	EventConsole     Event = "console"
	EventExecuteStop Event = "execute stop"
	EventResumed     Event = "mcu resumed"
	EventState       Event = "mcu state"
)

const DefaultURL = "ws://localhost:3000"
