package gauge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countSleeps(n *int) func(time.Duration) {
	return func(time.Duration) { *n++ }
}

func TestWriteVerifiedRetries(t *testing.T) {
	sleeps := 0
	sleepFn = countSleeps(&sleeps)
	defer func() { sleepFn = noSleepFn }()

	f := newFakePort()
	f.writeFails[regMisc] = 2
	require.NoError(t, writeVerified(f, regMisc, 0x1234))
	assert.Equal(t, uint16(0x1234), f.regs[regMisc])
	assert.Equal(t, 2, sleeps)

	sleeps = 0
	f.writeFails[regMisc] = writeAttempts
	err := writeVerified(f, regMisc, 0x4321)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, writeAttempts-1, sleeps)
	assert.Equal(t, uint16(0x1234), f.regs[regMisc])
}

func TestWriteTableEntryBusyRead(t *testing.T) {
	sleepFn = noSleepFn
	f := newFakePort()
	reg := regTableStart + 1
	f.busy[reg] = 1
	require.NoError(t, writeTableEntry(f, reg, 0x0100))
	assert.Len(t, f.writesTo(reg), 1)
}

func TestWriteTableEntryRetriesOnce(t *testing.T) {
	sleepFn = noSleepFn
	f := newFakePort()
	reg := regTableStart + 2
	// Both reads of the first verify see the bus busy.
	f.busy[reg] = 2
	require.NoError(t, writeTableEntry(f, reg, 0x0200))
	assert.Len(t, f.writesTo(reg), 2)

	f.stuck[reg] = 0x0000
	err := writeTableEntry(f, reg, 0x0300)
	require.ErrorIs(t, err, ErrVerification)
	assert.Len(t, f.writesTo(reg), 4)
}

func TestRegistersListsMeasurements(t *testing.T) {
	regs := Registers()
	assert.Contains(t, regs, regSOC)
	assert.Contains(t, regs, regVoltageCal)
	assert.Contains(t, regs, regDPSlope0+2)
}
