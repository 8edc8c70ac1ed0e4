package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"

	"go328mon/internal/mcu"
	. "go328mon/m328mon"
)

const (
	logHistory     = 64 * 1024
	consoleHistory = 64 * 1024
)

// textBuffer keeps the tail of an append-only pane so it can be redrawn
// when the pane is shown again, plus what the live view has not seen yet.
type textBuffer struct {
	max     int
	history []byte
	pending []byte
}

func (b *textBuffer) append(text string) {
	b.history = append(b.history, text...)
	if over := len(b.history) - b.max; over > 0 {
		b.history = append([]byte(nil), b.history[over:]...)
	}
	b.pending = append(b.pending, text...)
}

func (b *textBuffer) takePending() string {
	out := string(b.pending)
	b.pending = b.pending[:0]
	return out
}

// replay returns the whole history and drops the pending part, which the
// history already contains.
func (b *textBuffer) replay() string {
	b.pending = b.pending[:0]
	return string(b.history)
}

// screen is the DebugView of the terminal monitor. Bus handlers fill it
// under mu and ask gocui for a redraw; drawing happens only on the gocui
// goroutine.
type screen struct {
	mu sync.Mutex
	g  *gocui.Gui

	regs    []string
	stack   []string
	log     textBuffer
	console textBuffer

	running   bool
	connected bool
	status    func() string
}

func newScreen() *screen {
	return &screen{
		regs:    registerLines(mcu.MachineState{}, false),
		stack:   []string{"(no snapshot)"},
		log:     textBuffer{max: logHistory},
		console: textBuffer{max: consoleHistory},
	}
}

func (s *screen) attach(g *gocui.Gui) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g = g
}

func (s *screen) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g = nil
}

func (s *screen) ShowState(st mcu.MachineState) {
	s.mu.Lock()
	s.regs = registerLines(st, true)
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) ShowStack(st mcu.MachineState) {
	s.mu.Lock()
	s.stack = stackLines(st)
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) AppendLog(line string) {
	s.mu.Lock()
	s.log.append(strings.TrimRight(line, "\n") + "\n")
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) AppendConsole(text string) {
	s.mu.Lock()
	s.console.append(text)
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) SetRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.refresh()
}

func (s *screen) refresh() {
	s.mu.Lock()
	g := s.g
	s.mu.Unlock()
	if g != nil {
		g.Update(s.draw)
	}
}

func (s *screen) draw(g *gocui.Gui) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, err := g.View(viewName(TabRegisters)); err == nil {
		v.Clear()
		fmt.Fprint(v, strings.Join(s.regs, "\n"))
	}
	if v, err := g.View(viewName(TabStack)); err == nil {
		v.Clear()
		fmt.Fprint(v, strings.Join(s.stack, "\n"))
	}
	if err := s.flush(g, viewName(TabLog), &s.log); err != nil {
		return err
	}
	if err := s.flush(g, viewName(TabConsole), &s.console); err != nil {
		return err
	}
	if v, err := g.View("status"); err == nil {
		v.Clear()
		fmt.Fprint(v, s.statusLine())
	}
	return nil
}

func (s *screen) flush(g *gocui.Gui, name string, buf *textBuffer) error {
	v, err := g.View(name)
	if err != nil {
		return nil
	}
	text := buf.takePending()
	if text == "" {
		return nil
	}
	return AppendScrolled(scroller{v}, v, text)
}

// fill writes a freshly created pane. Callers hold mu.
func (s *screen) fill(t Tab, v *gocui.View) {
	switch t {
	case TabRegisters:
		fmt.Fprint(v, strings.Join(s.regs, "\n"))
	case TabStack:
		fmt.Fprint(v, strings.Join(s.stack, "\n"))
	case TabLog:
		fmt.Fprint(v, s.log.replay())
		scroller{v}.ScrollToBottom()
	case TabConsole:
		fmt.Fprint(v, s.console.replay())
		scroller{v}.ScrollToBottom()
	}
}

func (s *screen) statusLine() string {
	link := "disconnected"
	if s.connected {
		link = "connected"
	}
	mode := "IDLE"
	if s.running {
		mode = "RUN"
	}
	extra := ""
	if s.status != nil {
		extra = s.status()
	}
	return fmt.Sprintf(" %s | %s %s", link, mode, extra)
}

type scroller struct {
	v *gocui.View
}

func (s scroller) NearBottom() bool {
	_, oy := s.v.Origin()
	_, h := s.v.Size()
	return oy+h >= len(s.v.BufferLines())-1
}

func (s scroller) ScrollToBottom() {
	_, h := s.v.Size()
	oy := len(s.v.BufferLines()) - h
	if oy < 0 {
		oy = 0
	}
	_ = s.v.SetOrigin(0, oy)
}

func (s scroller) scroll(dy int) {
	_, oy := s.v.Origin()
	oy += dy
	_, h := s.v.Size()
	if limit := len(s.v.BufferLines()) - h; oy > limit {
		oy = limit
	}
	if oy < 0 {
		oy = 0
	}
	_ = s.v.SetOrigin(0, oy)
}

func registerLines(st mcu.MachineState, has bool) []string {
	if !has {
		return []string{"(no snapshot)"}
	}
	lines := []string{
		fmt.Sprintf("PC %s  SP %03X  SREG %s", mcu.FormatPC(st), st.StackPointer, mcu.FormatSREG(st)),
		fmt.Sprintf("X %04X  Y %04X  Z %04X", st.X(), st.Y(), st.Z()),
		"",
	}
	return append(lines, mcu.FormatRegisters(st, 4)...)
}

func stackLines(st mcu.MachineState) []string {
	if len(st.Stack) == 0 {
		return []string{"(empty)"}
	}
	return mcu.FormatStack(st)
}
