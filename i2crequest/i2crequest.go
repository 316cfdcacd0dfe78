package i2crequest

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

// TxResponse is a canned reply used in place of the dbus call in tests.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mockMu        sync.Mutex
	mockResponses []TxResponse
	mocking       bool
)

// MockTxResponses makes the following Tx calls return responses in order
// instead of calling the i2c service. Passing nil stops mocking.
func MockTxResponses(responses []TxResponse) {
	mockMu.Lock()
	defer mockMu.Unlock()
	mockResponses = responses
	mocking = responses != nil
}

func nextMockResponse() (TxResponse, bool) {
	mockMu.Lock()
	defer mockMu.Unlock()
	if !mocking {
		return TxResponse{}, false
	}
	if len(mockResponses) == 0 {
		return TxResponse{Err: fmt.Errorf("no mock i2c responses left")}, true
	}
	r := mockResponses[0]
	mockResponses = mockResponses[1:]
	return r, true
}

// Tx asks the i2c service to write and then read readLen bytes from address.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if r, ok := nextMockResponse(); ok {
		return r.Response, r.Err
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}

	return response, nil
}

func CheckAddress(address byte, timeout int) error {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	return err
}

// ReadWord reads a little endian 16 bit register, SMBus style.
func ReadWord(address, register byte, timeout int) (uint16, error) {
	response, err := Tx(address, []byte{register}, 2, timeout)
	if err != nil {
		return 0, err
	}
	if len(response) != 2 {
		return 0, fmt.Errorf("read word from 0x%02x: got %d bytes", register, len(response))
	}
	return uint16(response[0]) | uint16(response[1])<<8, nil
}

// WriteWord writes a little endian 16 bit register, SMBus style.
func WriteWord(address, register byte, value uint16, timeout int) error {
	_, err := Tx(address, []byte{register, byte(value), byte(value >> 8)}, 0, timeout)
	return err
}
