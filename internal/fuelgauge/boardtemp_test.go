package fuelgauge

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/i2crequest"
	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noSleepFn = func(d time.Duration) {}

func addCRC(data []byte) []byte {
	return append(data, crc8.Checksum(data, crcTable))
}

func TestBoardTemperature(t *testing.T) {
	sleepFn = noSleepFn
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{aht20Calibrated}},
		{Response: []byte{}},
		{Response: addCRC([]byte{aht20Busy, 0, 0, 0, 0, 0})},
		{Response: addCRC([]byte{aht20Calibrated, 0x80, 0x00, 0x06, 0x00, 0x00})},
	})
	defer i2crequest.MockTxResponses(nil)

	dc, err := readBoardTemperature()
	require.NoError(t, err)
	assert.Equal(t, 250, dc)
}

func TestBoardTemperatureCalibratesAndChecksCRC(t *testing.T) {
	sleepFn = noSleepFn
	reading := addCRC([]byte{0x00, 0x80, 0x00, 0x06, 0x00, 0x00})
	reading[6]++
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{0x00}},
		{Response: []byte{}},
		{Response: []byte{}},
		{Response: reading},
	})
	defer i2crequest.MockTxResponses(nil)

	_, err := readBoardTemperature()
	require.ErrorIs(t, err, errBadSensorCRC)
}

func TestBoardTemperatureNeverReady(t *testing.T) {
	sleepFn = noSleepFn
	busy := addCRC([]byte{aht20Busy, 0, 0, 0, 0, 0})
	i2crequest.MockTxResponses([]i2crequest.TxResponse{
		{Response: []byte{aht20Calibrated}},
		{Response: []byte{}},
		{Response: busy},
		{Response: busy},
		{Response: busy},
	})
	defer i2crequest.MockTxResponses(nil)

	_, err := readBoardTemperature()
	require.Error(t, err)
}
