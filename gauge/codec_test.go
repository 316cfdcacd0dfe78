package gauge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignMagRoundTrip(t *testing.T) {
	require.Equal(t, -5, SignMag(0x85).Int())
	require.Equal(t, SignMag(0x85), SignMagFromInt(-5))

	for b := 0; b <= 0xFF; b++ {
		if b == signBit {
			// Negative zero normalises to zero.
			require.Equal(t, SignMag(0), SignMagFromInt(SignMag(b).Int()))
			continue
		}
		require.Equal(t, SignMag(b), SignMagFromInt(SignMag(b).Int()), "byte 0x%02x", b)
	}
}

func TestSignMagClamps(t *testing.T) {
	assert.Equal(t, SignMag(0x7F), SignMagFromInt(500))
	assert.Equal(t, SignMag(0xFF), SignMagFromInt(-500))
	assert.Equal(t, uint16(0x8585), SignMagFromInt(-5).Word())
}

func TestApplyOffset(t *testing.T) {
	assert.Equal(t, uint16(0x1E05), applyOffset(0x1E00, 0x8005))
	assert.Equal(t, uint16(0x1DFB), applyOffset(0x1E00, 0x0085))
	assert.Equal(t, uint16(0), applyOffset(0x0002, 0x0085))
}

func TestDecodeScenarios(t *testing.T) {
	assert.Equal(t, 2000, DecodeVoltage(0x1000))
	// 0x400 of fraction is half a volt.
	assert.Equal(t, 2500, DecodeVoltage(0x1400))
	assert.Equal(t, 0, DecodeSOC(0x8000))
	assert.Equal(t, 500, DecodeSOC(0x3200))
	assert.Equal(t, 970, DecodeSOC(0x6100))
	assert.Equal(t, 250, DecodeTemperature(0x1900))
	assert.Equal(t, -250, DecodeTemperature(0x9900))
	assert.Equal(t, 1500, DecodeCurrent(0x0C00))
	assert.Equal(t, -1500, DecodeCurrent(0x8C00))
	assert.Equal(t, 0x12, DecodeCycle(0xFC12))
}

func TestDecodeTotal(t *testing.T) {
	for raw := 0; raw <= 0xFFFF; raw++ {
		w := uint16(raw)
		v := DecodeVoltage(w)
		require.True(t, v >= 0 && v < 16000)
		c := DecodeCurrent(w)
		require.True(t, c > -4000 && c < 4000)
		soc := DecodeSOC(w)
		require.True(t, soc >= 0 && soc < 1280)
		DecodeTemperature(w)
		DecodeCycle(w)
	}
}

func TestEncodeVoltage(t *testing.T) {
	for _, mv := range []int{2000, 3300, 3700, 4200} {
		got := DecodeVoltage(EncodeVoltage(mv))
		assert.InDelta(t, mv, got, 1)
	}
	assert.Equal(t, uint16(0), EncodeVoltage(-10))
}

func TestDecodeBufferCurrent(t *testing.T) {
	assert.Equal(t, 512, decodeBufferCurrent(0x0200))
	assert.Equal(t, -512, decodeBufferCurrent(0x4200))
	assert.Equal(t, 0x3FFF, decodeBufferCurrent(0xBFFF))
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name                              string
		prevAvg, prevSample, sample, want int
	}{
		{"bootstrap", 0, 3700, 3800, 3800},
		{"both missing", 3700, 0, 0, 0},
		{"sample missing", 3700, 3800, 0, 3750},
		{"previous missing", 3700, 0, 3800, 3750},
		{"blend", 3700, 3800, 3800, 3750},
		{"steady", 3700, 3700, 3700, 3700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, average(tt.prevAvg, tt.prevSample, tt.sample))
		})
	}
	// A missing reading is treated the same whichever slot it is in.
	assert.Equal(t, average(3600, 0, 3800), average(3600, 3800, 0))
}
