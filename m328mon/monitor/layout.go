package monitor

import (
	. "go328mon/m328mon"
)

type rect struct {
	x0, y0, x1, y1 int
}

const (
	minWidth  = 20
	minHeight = 8
)

// paneRects places the shown tabs in the body between the status line and
// the key bar. A single tab fills the body, a split puts two side by side,
// and a grid uses two columns where an odd last tab spans both.
func paneRects(tabs *TabVisibility, maxX, maxY int) map[Tab]rect {
	visible := tabs.Visible()
	out := make(map[Tab]rect, len(visible))
	if len(visible) == 0 || maxX < minWidth || maxY < minHeight {
		return out
	}
	var cols int
	switch tabs.LayoutClass() {
	case LayoutSingle:
		cols = 1
	case LayoutSplit, LayoutGrid:
		cols = 2
	default:
		return out
	}
	top, bottom := 1, maxY-2
	rows := (len(visible) + cols - 1) / cols
	height := (bottom - top) / rows
	width := maxX / cols
	for i, tab := range visible {
		row, col := i/cols, i%cols
		r := rect{
			x0: col * width,
			y0: top + row*height,
			x1: (col+1)*width - 1,
			y1: top + (row+1)*height - 1,
		}
		if col == cols-1 {
			r.x1 = maxX - 1
		}
		if row == rows-1 {
			r.y1 = bottom - 1
		}
		if i == len(visible)-1 && col == 0 && cols == 2 {
			r.x1 = maxX - 1
		}
		out[tab] = r
	}
	return out
}

func viewName(t Tab) string {
	switch t {
	case TabRegisters:
		return "registers"
	case TabStack:
		return "stack"
	case TabLog:
		return "log"
	case TabConsole:
		return "console"
	}
	return ""
}
