package memorymap

import (
	"strconv"
	"strings"
)

// Find resolves a register name. An exact match wins over a prefix match,
// which wins over a substring match; ties go to the lowest address.
func Find(query string) (uint16, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0, false
	}
	if len(q) > 1 && q[0] == 'r' {
		if n, err := strconv.Atoi(q[1:]); err == nil && n >= 0 && n < 32 {
			return uint16(n), true
		}
	}

	var exactAddr uint16
	exactOK := false
	var prefixAddr uint16
	prefixOK := false
	var containsAddr uint16
	containsOK := false

	for addr, name := range symbols {
		s := strings.ToLower(name)
		if s == q {
			if !exactOK || addr < exactAddr {
				exactAddr = addr
				exactOK = true
			}
			continue
		}
		if strings.HasPrefix(s, q) {
			if !prefixOK || addr < prefixAddr {
				prefixAddr = addr
				prefixOK = true
			}
			continue
		}
		if strings.Contains(s, q) {
			if !containsOK || addr < containsAddr {
				containsAddr = addr
				containsOK = true
			}
		}
	}

	if exactOK {
		return exactAddr, true
	}
	if prefixOK {
		return prefixAddr, true
	}
	if containsOK {
		return containsAddr, true
	}
	return 0, false
}
