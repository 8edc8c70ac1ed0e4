package memory

import (
	"fmt"
	"strconv"
	"strings"
)

func ParseHex(value string) (uint16, error) {
	text := strings.TrimSpace(strings.ToLower(value))
	text = strings.TrimPrefix(text, "$")
	text = strings.TrimPrefix(text, "0x")
	v, err := strconv.ParseUint(text, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("Invalid hex value: %s", value)
	}
	return uint16(v), nil
}

func ParseNumber(value string) (int, error) {
	text := strings.TrimSpace(strings.ToLower(value))
	if strings.HasPrefix(text, "$") {
		text = "0x" + text[1:]
	}
	parsed, err := strconv.ParseInt(text, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("Invalid number: %s", value)
	}
	return int(parsed), nil
}

func ParsePositiveInt(value string) (int, error) {
	parsed, err := ParseNumber(value)
	if err != nil {
		return 0, fmt.Errorf("Invalid limit.")
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("Limit must be > 0.")
	}
	return parsed, nil
}

// ParseFrequency reads a cycle rate in Hz. A "k" suffix multiplies by 1000.
func ParseFrequency(value string) (float64, error) {
	text := strings.TrimSpace(strings.ToLower(value))
	text = strings.TrimSuffix(text, "hz")
	scale := 1.0
	if strings.HasSuffix(text, "k") {
		scale = 1000
		text = strings.TrimSuffix(text, "k")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("Invalid frequency: %s", value)
	}
	return f * scale, nil
}
