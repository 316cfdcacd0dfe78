package gauge

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalerEngine(flags uint8) *Engine {
	conf := testConfig()
	conf.Capacity.CalculationType = flags
	e := calibrationEngine(conf)
	e.tracker.CapacityMax = conf.Capacity.Max
	e.tracker.InitialUpdateOfSOC = true
	return e
}

func TestCapacityAlwaysInRange(t *testing.T) {
	for flags := uint8(0); flags < 16; flags++ {
		for _, capMax := range []int{0, 500, 970, 1000, 1030} {
			e := scalerEngine(flags)
			e.tracker.CapacityMax = capMax
			for raw := 0; raw <= 1000; raw += 7 {
				v := e.scaleCapacity(raw)
				require.True(t, v >= 0 && v <= 100, "flags %d max %d raw %d gave %d", flags, capMax, raw, v)
			}
		}
	}
}

func TestLinearScale(t *testing.T) {
	assert.Equal(t, 0, linearScale(50, 100, 900))
	assert.Equal(t, 500, linearScale(500, 100, 900))
	assert.Equal(t, 1000, linearScale(900, 100, 900))
	assert.Equal(t, 500, linearScale(500, 100, 100))
}

func TestScaledCapacity(t *testing.T) {
	e := scalerEngine(CapacityScale)
	e.tracker.CapacityMax = 900
	e.conf.Capacity.Min = 100
	assert.Equal(t, 50, e.scaleCapacity(500))
}

func TestAtomicCapacityStep(t *testing.T) {
	e := scalerEngine(CapacityAtomic)
	assert.Equal(t, 50, e.scaleCapacity(500))
	assert.Equal(t, 51, e.scaleCapacity(900))
	assert.Equal(t, 52, e.scaleCapacity(900))
	assert.Equal(t, 51, e.scaleCapacity(0))

	rng := rand.New(rand.NewSource(1))
	last := e.tracker.CapacityOld
	for i := 0; i < 500; i++ {
		v := e.scaleCapacity(rng.Intn(1001))
		require.LessOrEqual(t, abs(v-last), 1)
		last = v
	}
}

func TestSkipAbnormalCapacity(t *testing.T) {
	e := scalerEngine(CapacitySkipAbnormal)
	assert.Equal(t, 50, e.scaleCapacity(500))
	assert.Equal(t, 50, e.scaleCapacity(600))
	assert.Equal(t, 40, e.scaleCapacity(400))

	e.tracker.Charging = true
	assert.Equal(t, 60, e.scaleCapacity(600))
}

func TestSOCInvalidGivesZeroCapacity(t *testing.T) {
	f := newFakePort()
	f.regs[regSOC] = 0x8000
	e := initEngine(t, f, testConfig())
	assert.Equal(t, 0, e.GetCapacity(false))
	assert.Equal(t, 0, e.GetCapacity(true))
}

func TestDynamicScale(t *testing.T) {
	f := newFakePort()
	conf := testConfig()
	conf.Capacity.CalculationType = CapacityDynamicScale
	e := initEngine(t, f, conf)

	f.regs[regSOC] = 0x6100
	assert.Equal(t, 970, e.CalculateDynamicScale(99))
	s := e.Status()
	assert.Equal(t, 970, s.Tracker.CapacityMax)
	assert.Equal(t, 99, s.Tracker.CapacityOld)

	// Readings outside the margin are clamped to it.
	f.regs[regSOC] = 0x5000
	assert.Equal(t, 970, e.CalculateDynamicScale(99))
	f.regs[regSOC] = 0x6400
	assert.Equal(t, 1000, e.CalculateDynamicScale(99))

	e.ResetCapacity()
	s = e.Status()
	assert.Equal(t, 1000, s.Tracker.CapacityMax)
	assert.True(t, s.Tracker.InitialUpdateOfSOC)
}

func TestGetCapacityRaw(t *testing.T) {
	f := newFakePort()
	e := initEngine(t, f, testConfig())
	assert.Equal(t, 500, e.GetCapacity(true))
	assert.Equal(t, 50, e.GetCapacity(false))
}
