package i2crequest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWordLittleEndian(t *testing.T) {
	MockTxResponses([]TxResponse{{Response: []byte{0x34, 0x12}}})
	defer MockTxResponses(nil)

	v, err := ReadWord(0x71, 0x82, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
}

func TestReadWordShortResponse(t *testing.T) {
	MockTxResponses([]TxResponse{{Response: []byte{0x34}}})
	defer MockTxResponses(nil)

	_, err := ReadWord(0x71, 0x82, 1000)
	require.Error(t, err)
}

func TestMockErrors(t *testing.T) {
	busErr := errors.New("bus busy")
	MockTxResponses([]TxResponse{{Err: busErr}, {Response: []byte{}}})
	defer MockTxResponses(nil)

	require.Equal(t, busErr, WriteWord(0x71, 0x01, 0xE800, 1000))
	require.NoError(t, WriteWord(0x71, 0x01, 0xE800, 1000))
	// Running out of canned responses is an error rather than a real bus call.
	require.Error(t, CheckAddress(0x71, 1000))
}
