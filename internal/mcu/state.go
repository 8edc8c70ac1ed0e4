package mcu

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	KB            = 1024
	RegisterCount = 32
	// StackOrigin is the top of the 2KB stack region. An sp equal to it
	// means the stack is empty.
	StackOrigin = 2*KB - 1
)

// MachineState is one decoded snapshot. It is rebuilt from scratch for
// every "mcu state" message and never mutated afterwards.
type MachineState struct {
	PC           uint16
	Registers    [RegisterCount]uint16
	StackPointer uint16
	// Stack holds the most recently pushed item first.
	Stack []uint16

	SREG    uint8
	HasSREG bool
}

type MalformedStateError struct {
	Field  string
	Reason string
}

func (e *MalformedStateError) Error() string {
	if e.Field == "" {
		return "malformed mcu state: " + e.Reason
	}
	return fmt.Sprintf("malformed mcu state: %s: %s", e.Field, e.Reason)
}

func malformed(field, format string, args ...any) error {
	return &MalformedStateError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type snapshot struct {
	PC         *uint16  `json:"pc"`
	SP         *int     `json:"sp"`
	R          *int     `json:"R"`
	RAM        *int     `json:"RAM"`
	DataMemory []uint16 `json:"data_memory"`
	SREG       *uint8   `json:"SREG"`
}

// Decode builds a MachineState from the payload of an "mcu state" message.
// The proxy sends the snapshot as a JSON string holding the object; a bare
// object is accepted too.
func Decode(data json.RawMessage) (MachineState, error) {
	snap, err := parse(data)
	if err != nil {
		return MachineState{}, err
	}
	return snap.decode()
}

func DecodeMemory(data json.RawMessage) ([]uint16, error) {
	snap, err := parse(data)
	if err != nil {
		return nil, err
	}
	if snap.DataMemory == nil {
		return nil, malformed("data_memory", "missing")
	}
	return snap.DataMemory, nil
}

func parse(data json.RawMessage) (snapshot, error) {
	body := bytes.TrimSpace(data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return snapshot{}, malformed("", "empty payload")
	}
	if body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return snapshot{}, malformed("", "bad string payload: %v", err)
		}
		body = []byte(inner)
	}
	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return snapshot{}, malformed("", "%v", err)
	}
	return snap, nil
}

func (s snapshot) decode() (MachineState, error) {
	switch {
	case s.PC == nil:
		return MachineState{}, malformed("pc", "missing")
	case s.SP == nil:
		return MachineState{}, malformed("sp", "missing")
	case s.R == nil:
		return MachineState{}, malformed("R", "missing")
	case s.RAM == nil:
		return MachineState{}, malformed("RAM", "missing")
	case s.DataMemory == nil:
		return MachineState{}, malformed("data_memory", "missing")
	}
	sp, r, ram, mem := *s.SP, *s.R, *s.RAM, s.DataMemory

	if sp < 0 || sp > StackOrigin {
		return MachineState{}, malformed("sp", "%d outside [0, %d]", sp, StackOrigin)
	}
	if r < 0 || r+RegisterCount > len(mem) {
		return MachineState{}, malformed("R", "register bank %d..%d outside data_memory of %d words", r, r+RegisterCount-1, len(mem))
	}
	if ram < 0 {
		return MachineState{}, malformed("RAM", "negative offset %d", ram)
	}

	out := MachineState{
		PC:           *s.PC,
		StackPointer: uint16(sp),
	}
	copy(out.Registers[:], mem[r:r+RegisterCount])
	if s.SREG != nil {
		out.SREG = *s.SREG
		out.HasSREG = true
	}

	depth := StackOrigin - sp
	out.Stack = make([]uint16, 0, depth)
	if depth > 0 {
		top := ram + 1 + StackOrigin - 1
		if top >= len(mem) {
			return MachineState{}, malformed("data_memory", "stack read at %d past %d words", top, len(mem))
		}
		for off := StackOrigin - 1; off >= sp; off-- {
			out.Stack = append(out.Stack, mem[ram+1+off])
		}
	}
	return out, nil
}

func (m MachineState) ByteAddress() uint32 {
	return uint32(m.PC) * 2
}

func (m MachineState) pair(lo int) uint16 {
	return (m.Registers[lo+1]&0xFF)<<8 | m.Registers[lo]&0xFF
}

// X, Y and Z are the 16-bit pointer registers R27:R26, R29:R28, R31:R30.
func (m MachineState) X() uint16 { return m.pair(26) }
func (m MachineState) Y() uint16 { return m.pair(28) }
func (m MachineState) Z() uint16 { return m.pair(30) }

const sregLetters = "ITHSVNZC"

type Flag uint8

const (
	FlagI Flag = 1 << iota
	FlagT
	FlagH
	FlagS
	FlagV
	FlagN
	FlagZ
	FlagC
)

func (m MachineState) Flag(f Flag) bool {
	return m.SREG&uint8(f) != 0
}

func (m MachineState) Flags() string {
	out := []byte(sregLetters)
	for i := range out {
		if m.SREG&(1<<i) == 0 {
			out[i] = '-'
		}
	}
	return string(out)
}
