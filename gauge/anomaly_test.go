package gauge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectResistance(t *testing.T) {
	level := PowerOffLevel{Threshold: 3400, Offset: 50}
	tests := []struct {
		name        string
		v, prev     int
		discharging bool
		mode        ResistanceMode
		rs          uint16
	}{
		{"above threshold", 3500, 3500, true, MixAuto, 0},
		{"previous above threshold", 3350, 3450, true, MixAuto, 0},
		{"charging", 3300, 3300, false, MixAuto, 0},
		{"below threshold", 3360, 3390, true, MixManual, 0x44},
		{"at offset", 3350, 3390, true, MixManual, 0x44},
		{"below offset", 3300, 3390, true, MixManual, 0x22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, rs := selectResistance(tt.v, tt.prev, tt.discharging, level, 0x44)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, tt.rs, rs)
		})
	}
}

func TestDieTemperatureSelectsPowerOffLevel(t *testing.T) {
	// 3349 mV sits between the low (3300) and normal (3400) thresholds.
	tests := []struct {
		name string
		temp uint16
		mode ResistanceMode
	}{
		{"cold", 0x0A00, MixAuto},
		{"14.9C", 0x0EF0, MixAuto},
		{"15.0C", 0x0F00, MixManual},
		{"15.9C", 0x0FF0, MixManual},
		{"warm", 0x1900, MixManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakePort()
			f.regs[regVoltage] = EncodeVoltage(3350)
			f.regs[regOCV] = EncodeVoltage(3350)
			f.regs[regTemperature] = tt.temp
			e := initEngine(t, f, testConfig())
			e.ReadVoltage()
			e.ReadTemperature()

			_, err := e.ReadSOC()
			require.NoError(t, err)
			assert.Equal(t, tt.mode, e.Status().ResistanceMode)
		})
	}
}

func TestDieWarmingLeavesLowLevel(t *testing.T) {
	f := newFakePort()
	f.regs[regVoltage] = EncodeVoltage(3350)
	f.regs[regOCV] = EncodeVoltage(3350)
	f.regs[regTemperature] = 0x0A00
	e := initEngine(t, f, testConfig())

	_, err := e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, MixAuto, e.Status().ResistanceMode)

	f.regs[regTemperature] = 0x1900
	e.ReadTemperature()
	_, err = e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, MixManual, e.Status().ResistanceMode)
	assert.Equal(t, uint16(0x0044), f.regs[regRSManual])
}

func TestOCVErrorForcesManualMode(t *testing.T) {
	f := newFakePort()
	f.regs[regOCV] = 0x1F00
	e := initEngine(t, f, testConfig())
	f.writes = nil

	for i := 1; i <= 5; i++ {
		_, err := e.ReadSOC()
		require.NoError(t, err)
		assert.Equal(t, i, e.Status().Tracker.IOCVErrorCount)
		assert.Equal(t, MixAuto, e.Status().ResistanceMode)
	}
	assert.Empty(t, f.writesTo(regParamRunUpd))

	_, err := e.ReadSOC()
	require.NoError(t, err)
	s := e.Status()
	assert.Equal(t, ocvErrorLimit, s.Tracker.IOCVErrorCount)
	assert.Equal(t, MixManual, s.ResistanceMode)
	assert.Equal(t, []uint16{1, 0}, f.writesTo(regParamRunUpd))
	assert.Equal(t, uint16(0x0044), f.regs[regRSManual])
	assert.NotZero(t, f.regs[regControl]&ctrlRSManual)

	// The count saturates.
	_, err = e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, ocvErrorLimit, e.Status().Tracker.IOCVErrorCount)

	// Once the OCV agrees the device goes back to automatic.
	f.regs[regVoltage] = 0x1F00
	e.ReadVoltage()
	_, err = e.ReadSOC()
	require.NoError(t, err)
	s = e.Status()
	assert.Equal(t, 0, s.Tracker.IOCVErrorCount)
	assert.Equal(t, MixAuto, s.ResistanceMode)
	assert.Zero(t, f.regs[regControl]&ctrlRSManual)
}

func TestOCVErrorIgnoredAfterVoltageStep(t *testing.T) {
	f := newFakePort()
	f.regs[regOCV] = 0x2000
	e := initEngine(t, f, testConfig())

	for i := 0; i < 5; i++ {
		_, err := e.ReadSOC()
		require.NoError(t, err)
	}
	f.regs[regVoltage] = 0x1F00
	e.ReadVoltage()
	_, err := e.ReadSOC()
	require.NoError(t, err)
	s := e.Status()
	assert.Equal(t, 0, s.Tracker.IOCVErrorCount)
	assert.Equal(t, MixAuto, s.ResistanceMode)
}

func TestUnsettledCurrentResetsOCVError(t *testing.T) {
	f := newFakePort()
	f.regs[regOCV] = 0x1F00
	e := initEngine(t, f, testConfig())

	_, err := e.ReadSOC()
	require.NoError(t, err)
	require.Equal(t, 1, e.Status().Tracker.IOCVErrorCount)

	f.regs[regCurrent] = 0x8C00
	e.ReadCurrent()
	_, err = e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, 0, e.Status().Tracker.IOCVErrorCount)
}

func TestTopOffCountsAsSettled(t *testing.T) {
	e := calibrationEngine(testConfig())
	e.tracker.Charging = true
	e.sample.Current = 200
	assert.True(t, e.settled())
	e.sample.Current = 50
	assert.False(t, e.settled())
	e.tracker.Charging = false
	e.sample.Current = 200
	assert.False(t, e.settled())
}

func TestLowVoltageSelectsManualResistance(t *testing.T) {
	f := newFakePort()
	f.regs[regVoltage] = EncodeVoltage(3300)
	f.regs[regOCV] = EncodeVoltage(3300)
	e := initEngine(t, f, testConfig())

	_, err := e.ReadSOC()
	require.NoError(t, err)
	require.Equal(t, MixManual, e.Status().ResistanceMode)

	_, err = e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, MixManual, e.Status().ResistanceMode)
	assert.Equal(t, uint16(0x0022), f.regs[regRSManual])

	e.SetCharging(true)
	_, err = e.ReadSOC()
	require.NoError(t, err)
	assert.Equal(t, MixAuto, e.Status().ResistanceMode)
}
