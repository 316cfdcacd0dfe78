package gauge

import (
	"fmt"
	"time"
)

// RegisterPort reads and writes 16 bit words at 8 bit register addresses.
// Implementations are expected to be safe for use by a single Engine.
type RegisterPort interface {
	ReadWord(reg Register) (uint16, error)
	WriteWord(reg Register, val uint16) error
}

// sleepFn can be replaced in tests.
var sleepFn = time.Sleep

const (
	writeAttempts      = 3
	writeRetryInterval = 50 * time.Millisecond
	tableSettle        = 10 * time.Millisecond
)

func readWord(p RegisterPort, reg Register) (uint16, error) {
	val, err := p.ReadWord(reg)
	if err != nil {
		return 0, fmt.Errorf("%w: read 0x%02x: %v", ErrTransport, uint8(reg), err)
	}
	return val, nil
}

// writeVerified writes a word, retrying a failed write up to writeAttempts
// times. The last error is returned once the attempts are used up.
func writeVerified(p RegisterPort, reg Register, val uint16) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = p.WriteWord(reg, val); err == nil {
			return nil
		}
		if attempt < writeAttempts {
			sleepFn(writeRetryInterval)
		}
	}
	return fmt.Errorf("%w: write 0x%04x to 0x%02x: %v", ErrTransport, val, uint8(reg), err)
}

// writeTableEntry writes one battery table word and reads it back. The bus
// reads 0xFFFF while the device is busy so that value gets one more read.
// A mismatch is rewritten once.
func writeTableEntry(p RegisterPort, reg Register, val uint16) error {
	if err := writeVerified(p, reg, val); err != nil {
		return err
	}
	if readBackTable(p, reg) == val {
		return nil
	}
	if err := writeVerified(p, reg, val); err != nil {
		return err
	}
	if got := readBackTable(p, reg); got != val {
		return fmt.Errorf("%w: table 0x%02x wrote 0x%04x read 0x%04x", ErrVerification, uint8(reg), val, got)
	}
	return nil
}

func readBackTable(p RegisterPort, reg Register) uint16 {
	sleepFn(tableSettle)
	got, err := p.ReadWord(reg)
	if err == nil && got != busIdle {
		return got
	}
	got, err = p.ReadWord(reg)
	if err != nil {
		return busIdle
	}
	return got
}
