/*
tc2-fuel-gauge - State of charge estimation for the tc2 fuel gauge
Copyright (C) 2025, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package fuelgauge

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/i2crequest"
	"github.com/sigurn/crc8"
)

// AHT20 sensor on the hat, used for the board temperature.
const (
	aht20Address    = 0x38
	aht20StatusReg  = 0x71
	aht20Busy       = 1 << 7
	aht20Calibrated = 1 << 3
	aht20Timeout    = 3000
)

var errBadSensorCRC = errors.New("bad crc")

// readBoardTemperature returns the board temperature in tenths of a degree.
func readBoardTemperature() (int, error) {
	status, err := i2crequest.Tx(aht20Address, []byte{aht20StatusReg}, 1, aht20Timeout)
	if err != nil {
		return 0, err
	}
	if len(status) != 1 {
		return 0, fmt.Errorf("status length: %d", len(status))
	}
	if status[0]&aht20Calibrated == 0 {
		log.Debug("Board sensor is not calibrated. Triggering a manual calibration.")
		if _, err := i2crequest.Tx(aht20Address, []byte{0xBE, 0x08, 0x00}, 0, aht20Timeout); err != nil {
			return 0, err
		}
		sleepFn(100 * time.Millisecond)
	}

	// Trigger a measurement, the datasheet says it takes at least 75ms.
	if _, err := i2crequest.Tx(aht20Address, []byte{0xAC, 0x33, 0x00}, 0, aht20Timeout); err != nil {
		return 0, err
	}
	var rawData []byte
	ready := false
	for range 3 {
		sleepFn(100 * time.Millisecond)
		rawData, err = i2crequest.Tx(aht20Address, []byte{aht20StatusReg}, 7, aht20Timeout)
		if err != nil {
			return 0, err
		}
		if len(rawData) != 7 {
			return 0, fmt.Errorf("reading length: %d", len(rawData))
		}
		if rawData[0]&aht20Busy == 0x00 {
			ready = true
			break
		}
		log.Debug("Board temperature reading is not yet ready")
	}
	if !ready {
		return 0, errors.New("board temperature reading was not ready after 3 tries")
	}
	if crc8.Checksum(rawData[:6], crcTable) != rawData[6] {
		return 0, errBadSensorCRC
	}

	raw := int(rawData[3]&0x0F)<<16 | int(rawData[4])<<8 | int(rawData[5])
	return raw*2000>>20 - 500, nil
}
