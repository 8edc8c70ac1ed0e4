package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

func Slice(buffer []uint16, start, length int) []uint16 {
	if start < 0 {
		start = 0
	}
	if start > len(buffer) {
		start = len(buffer)
	}
	end := start + length
	if length < 0 || end > len(buffer) {
		end = len(buffer)
	}
	out := make([]uint16, end-start)
	copy(out, buffer[start:end])
	return out
}

func DumpJSON(address int, buffer []uint16) (string, error) {
	type payload struct {
		Address int      `json:"address"`
		Buffer  []uint16 `json:"buffer"`
	}
	encoded, err := json.Marshal(payload{Address: address, Buffer: buffer})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DumpHuman formats buffer as address/hex/ascii rows. Words above 0xFF are
// printed with four digits and shown as '.' in the ascii column.
func DumpHuman(address int, buffer []uint16, columns int, showHex bool, showASCII bool) string {
	if columns <= 0 {
		columns = 16
	}
	wide := false
	for _, v := range buffer {
		if v > 0xFF {
			wide = true
			break
		}
	}
	cell := 2
	if wide {
		cell = 4
	}
	lines := make([]string, 0, (len(buffer)/columns)+1)
	for offset := 0; offset < len(buffer); offset += columns {
		end := offset + columns
		if end > len(buffer) {
			end = len(buffer)
		}
		chunk := buffer[offset:end]
		parts := []string{fmt.Sprintf("%04X:", address+offset)}
		if showHex {
			hex := make([]string, len(chunk))
			for i, v := range chunk {
				hex[i] = fmt.Sprintf("%0*X", cell, v)
			}
			hexWidth := columns*(cell+1) - 1
			hexText := strings.Join(hex, " ")
			if len(hexText) < hexWidth {
				hexText += strings.Repeat(" ", hexWidth-len(hexText))
			}
			parts = append(parts, hexText)
		}
		if showASCII {
			parts = append(parts, formatASCIIChunk(chunk))
		}
		lines = append(lines, strings.Join(parts, "  "))
	}
	return strings.Join(lines, "\n")
}

func formatASCIIChunk(chunk []uint16) string {
	var ascii strings.Builder
	ascii.Grow(len(chunk))
	for _, v := range chunk {
		if v >= 32 && v <= 126 {
			ascii.WriteByte(byte(v))
		} else {
			ascii.WriteByte('.')
		}
	}
	return ascii.String()
}
