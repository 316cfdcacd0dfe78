package fuelgauge

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/sigurn/crc8"
)

var errBadCRC = errors.New("state file CRC mismatch")

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// persistentState is the part of the tracker that survives a restart.
type persistentState struct {
	Tracker     gauge.AnomalyTracker `json:"tracker"`
	LastUpdated time.Time            `json:"last_updated"`
	CRC         uint8                `json:"crc"`
}

func (s persistentState) checksum() (uint8, error) {
	s.CRC = 0
	data, err := json.Marshal(s)
	if err != nil {
		return 0, err
	}
	return crc8.Checksum(data, crcTable), nil
}

func saveState(path string, tracker gauge.AnomalyTracker) error {
	state := persistentState{
		Tracker:     tracker,
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	crc, err := state.checksum()
	if err != nil {
		return err
	}
	state.CRC = crc

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadState returns nil with no error when there is no state file yet.
func loadState(path string) (*persistentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state persistentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	crc, err := state.checksum()
	if err != nil {
		return nil, err
	}
	if crc != state.CRC {
		return nil, errBadCRC
	}
	return &state, nil
}
