package mcu

import (
	"fmt"
	"strings"
)

func FormatPC(m MachineState) string {
	return fmt.Sprintf("%04X", m.ByteAddress())
}

func FormatRegister(value uint16) string {
	return fmt.Sprintf("%02X", value)
}

func FormatRegisters(m MachineState, perRow int) []string {
	if perRow <= 0 {
		perRow = 8
	}
	rows := make([]string, 0, (RegisterCount+perRow-1)/perRow)
	var line strings.Builder
	for i, v := range m.Registers {
		if i%perRow != 0 {
			line.WriteString("  ")
		}
		fmt.Fprintf(&line, "R%-2d=%s", i, FormatRegister(v))
		if i%perRow == perRow-1 || i == RegisterCount-1 {
			rows = append(rows, line.String())
			line.Reset()
		}
	}
	return rows
}

// FormatStack returns one line per stack slot, top of stack first, each
// prefixed by its stack offset.
func FormatStack(m MachineState) []string {
	rows := make([]string, 0, len(m.Stack))
	for i, v := range m.Stack {
		off := StackOrigin - 1 - i
		rows = append(rows, fmt.Sprintf("%03X: %s", off, FormatRegister(v)))
	}
	return rows
}

func FormatSREG(m MachineState) string {
	if !m.HasSREG {
		return "--------"
	}
	return m.Flags()
}

func Summary(m MachineState) string {
	return fmt.Sprintf(
		"PC=%s SP=%03X SREG=%s X=%04X Y=%04X Z=%04X depth=%d",
		FormatPC(m),
		m.StackPointer,
		FormatSREG(m),
		m.X(),
		m.Y(),
		m.Z(),
		len(m.Stack),
	)
}
