package m328mon

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go328mon/internal/mcu"
)

// DebugView is where a session renders. Methods are called from the bus
// loop, one at a time; implementations that draw on another goroutine must
// hand the data over themselves.
type DebugView interface {
	// ShowState updates the program counter and register display. It is
	// called for every snapshot.
	ShowState(st mcu.MachineState)
	// ShowStack rebuilds the stack display. The render gate calls it only
	// when the stack pointer moved.
	ShowStack(st mcu.MachineState)
	AppendLog(line string)
	AppendConsole(text string)
}

type RunIndicator interface {
	SetRunning(running bool)
}

type ConnectionIndicator interface {
	SetConnected(connected bool)
}

type Scrollable interface {
	NearBottom() bool
	ScrollToBottom()
}

// AppendScrolled writes text to w and keeps s pinned to the bottom only if
// it was already there.
func AppendScrolled(s Scrollable, w io.Writer, text string) error {
	pinned := s.NearBottom()
	if _, err := io.WriteString(w, text); err != nil {
		return err
	}
	if pinned {
		s.ScrollToBottom()
	}
	return nil
}

type MultiView []DebugView

func (m MultiView) ShowState(st mcu.MachineState) {
	for _, v := range m {
		v.ShowState(st)
	}
}

func (m MultiView) ShowStack(st mcu.MachineState) {
	for _, v := range m {
		v.ShowStack(st)
	}
}

func (m MultiView) AppendLog(line string) {
	for _, v := range m {
		v.AppendLog(line)
	}
}

func (m MultiView) AppendConsole(text string) {
	for _, v := range m {
		v.AppendConsole(text)
	}
}

func (m MultiView) SetRunning(running bool) {
	for _, v := range m {
		if r, ok := v.(RunIndicator); ok {
			r.SetRunning(running)
		}
	}
}

func (m MultiView) SetConnected(connected bool) {
	for _, v := range m {
		if c, ok := v.(ConnectionIndicator); ok {
			c.SetConnected(connected)
		}
	}
}

// TextView prints everything as plain lines.
type TextView struct {
	mu        sync.Mutex
	out       io.Writer
	quietRegs bool
}

func NewTextView(out io.Writer) *TextView {
	return &TextView{out: out}
}

func (t *TextView) SetQuietState(quiet bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quietRegs = quiet
}

func (t *TextView) ShowState(st mcu.MachineState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quietRegs {
		return
	}
	fmt.Fprintln(t.out, mcu.Summary(st))
	for _, row := range mcu.FormatRegisters(st, 8) {
		fmt.Fprintln(t.out, "  "+row)
	}
}

func (t *TextView) ShowStack(st mcu.MachineState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quietRegs {
		return
	}
	if len(st.Stack) == 0 {
		fmt.Fprintln(t.out, "  stack: empty")
		return
	}
	fmt.Fprintln(t.out, "  stack: "+strings.Join(mcu.FormatStack(st), ", "))
}

func (t *TextView) AppendLog(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, "log: "+strings.TrimRight(line, "\n"))
}

func (t *TextView) AppendConsole(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.out, text)
}
