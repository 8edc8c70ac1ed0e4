package m328mon

import (
	"sync"

	"go328mon/internal/mcu"
)

const noStackPointer = -1

// RenderGate skips stack rebuilds while the stack pointer stays put.
// Registers and PC are cheap and always shown.
type RenderGate struct {
	mu     sync.Mutex
	lastSP int
}

func NewRenderGate() *RenderGate {
	return &RenderGate{lastSP: noStackPointer}
}

func (g *RenderGate) Apply(st mcu.MachineState, view DebugView) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	view.ShowState(st)
	sp := int(st.StackPointer)
	rebuilt := sp != g.lastSP
	if rebuilt {
		view.ShowStack(st)
	}
	g.lastSP = sp
	return rebuilt
}

func (g *RenderGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSP = noStackPointer
}
