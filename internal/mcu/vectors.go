package mcu

import (
	"fmt"
	"strings"

	"go328mon/internal/memory"
)

var Vectors = []string{
	"RESET",
	"INT0",
	"INT1",
	"PCINT0",
	"PCINT1",
	"PCINT2",
	"WDT",
	"TIMER2_COMPA",
	"TIMER2_COMPB",
	"TIMER2_OVF",
	"TIMER1_CAPT",
	"TIMER1_COMPA",
	"TIMER1_COMPB",
	"TIMER1_OVF",
	"TIMER0_COMPA",
	"TIMER0_COMPB",
	"TIMER0_OVF",
	"SPI_STC",
	"USART_RX",
	"USART_UDRE",
	"USART_TX",
	"ADC",
	"EE_READY",
	"ANALOG_COMP",
	"TWI",
	"SPM_READY",
}

// ParseVector accepts a vector index (decimal or hex) or its name, with or
// without the _vect suffix.
func ParseVector(value string) (int, error) {
	name := strings.ToUpper(strings.TrimSpace(value))
	name = strings.TrimSuffix(name, "_VECT")
	for i, v := range Vectors {
		if v == name {
			return i, nil
		}
	}
	n, err := memory.ParseNumber(value)
	if err != nil {
		return 0, fmt.Errorf("Invalid interrupt vector: %s", value)
	}
	if n < 0 || n >= len(Vectors) {
		return 0, fmt.Errorf("Interrupt vector out of range: %d (0..%d)", n, len(Vectors)-1)
	}
	return n, nil
}

func VectorName(index int) string {
	if index < 0 || index >= len(Vectors) {
		return fmt.Sprintf("vector %d", index)
	}
	return Vectors[index] + "_vect"
}
