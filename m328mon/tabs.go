package m328mon

import "sync"

type Tab int

const (
	TabRegisters Tab = iota
	TabStack
	TabLog
	TabConsole
	tabCount
)

var tabNames = [tabCount]string{"Registers", "Stack", "Log", "Console"}

func (t Tab) String() string {
	if t < 0 || t >= tabCount {
		return "?"
	}
	return tabNames[t]
}

func Tabs() []Tab {
	return []Tab{TabRegisters, TabStack, TabLog, TabConsole}
}

const (
	LayoutNone   = "none"
	LayoutSingle = "single"
	LayoutSplit  = "split"
	LayoutGrid   = "grid"
)

// TabVisibility tracks which panes are shown. All start visible.
type TabVisibility struct {
	mu    sync.Mutex
	shown [tabCount]bool
}

func NewTabVisibility() *TabVisibility {
	v := &TabVisibility{}
	for i := range v.shown {
		v.shown[i] = true
	}
	return v
}

func (v *TabVisibility) Shown(t Tab) bool {
	if t < 0 || t >= tabCount {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shown[t]
}

func (v *TabVisibility) Set(t Tab, shown bool) {
	if t < 0 || t >= tabCount {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown[t] = shown
}

func (v *TabVisibility) Toggle(t Tab) bool {
	if t < 0 || t >= tabCount {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown[t] = !v.shown[t]
	return v.shown[t]
}

func (v *TabVisibility) Visible() []Tab {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Tab, 0, tabCount)
	for i, on := range v.shown {
		if on {
			out = append(out, Tab(i))
		}
	}
	return out
}

func (v *TabVisibility) Count() int {
	return len(v.Visible())
}

func (v *TabVisibility) LayoutClass() string {
	switch n := v.Count(); {
	case n == 0:
		return LayoutNone
	case n == 1:
		return LayoutSingle
	case n == 2:
		return LayoutSplit
	default:
		return LayoutGrid
	}
}
