package gauge

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	noSleepFn    = func(d time.Duration) {}
	errFakeWrite = errors.New("fake write failure")
)

type fakeWrite struct {
	reg Register
	val uint16
}

// fakePort is an in-memory register file.
type fakePort struct {
	regs       map[Register]uint16
	writes     []fakeWrite
	readErr    map[Register]error
	writeFails map[Register]int
	busy       map[Register]int
	// Registers that always read back this value whatever is written.
	stuck map[Register]uint16
}

func newFakePort() *fakePort {
	return &fakePort{
		regs:       freshDevice(),
		readErr:    map[Register]error{},
		writeFails: map[Register]int{},
		busy:       map[Register]int{},
		stuck:      map[Register]uint16{},
	}
}

// freshDevice is the register file of a device straight out of reset.
func freshDevice() map[Register]uint16 {
	return map[Register]uint16{
		regDeviceID:    0x0003,
		regControl:     ctrlDefault,
		regOpStatus:    0,
		regReset:       0,
		regVoltage:     0x1E66,
		regOCV:         0x1E66,
		regCurrent:     0,
		regTemperature: 0x1900,
		regSOC:         0x3200,
		regCycle:       0x0012,
	}
}

func (f *fakePort) ReadWord(reg Register) (uint16, error) {
	if err := f.readErr[reg]; err != nil {
		return 0, err
	}
	if f.busy[reg] > 0 {
		f.busy[reg]--
		return busIdle, nil
	}
	if v, ok := f.stuck[reg]; ok {
		return v, nil
	}
	return f.regs[reg], nil
}

func (f *fakePort) WriteWord(reg Register, val uint16) error {
	if f.writeFails[reg] > 0 {
		f.writeFails[reg]--
		return errFakeWrite
	}
	f.writes = append(f.writes, fakeWrite{reg, val})
	f.regs[reg] = val
	return nil
}

func (f *fakePort) writesTo(reg Register) []uint16 {
	var vals []uint16
	for _, w := range f.writes {
		if w.reg == reg {
			vals = append(vals, w.val)
		}
	}
	return vals
}

func (f *fakePort) snapshot() map[Register]uint16 {
	s := make(map[Register]uint16, len(f.regs))
	for k, v := range f.regs {
		s[k] = v
	}
	return s
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *Config {
	c := DefaultConfig()
	for i := 0; i <= tableLen; i++ {
		c.DischargeTable = append(c.DischargeTable, uint16(0x1400+i*0x40))
		c.QTable = append(c.QTable, uint16(i*0x100))
	}
	c.RCE = []uint16{0x0601, 0x0F0A, 0x0A0A}
	c.DTCD = 0x0001
	c.VITPeriod = 0x3506
	c.ControlValue = 0x2048
	c.Resistance = ResistanceConfig{
		Manual:                0x0044,
		MixFactorCharge:       0x0400,
		MixFactorDischarge:    0x0380,
		Max:                   0x1600,
		Min:                   0x0180,
		MixFactorCurrentLimit: -2000,
	}
	c.Mix = MixConfig{Rate: 0x0003, InitBlank: 0x0008}
	c.DeviceCapacity = DeviceCapacity{Min: 0x3000, Cap: 0x3F00}
	c.TopOff = TopOffConfig{SOC: 0x0400, Enable: true, Current: 300}
	c.VoltageCal = 0x8000
	c.CurrentSlope = 0x8080
	c.Alg = []ChannelCal{{0, 0x8080}, {0, 0x8080}, {0, 0x8080}}
	c.DP = []ChannelCal{{1, 0x8181}, {1, 0x8181}, {1, 0x8181}}
	c.AutoRS = []uint16{1, 2, 3, 4}
	c.Cycle = CycleConfig{HighLimit: 9, LowLimit: 1, LimitControl: 0x04}
	return &c
}

func newTestEngine(f *fakePort) *Engine {
	sleepFn = noSleepFn
	return NewEngine(f, quietLogger())
}
