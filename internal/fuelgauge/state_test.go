package fuelgauge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.json")
	tracker := gauge.AnomalyTracker{
		IOCVErrorCount: 3,
		SWVEmpty:       gauge.VEmptyRecovery,
		CapacityOld:    42,
		CapacityMax:    970,
	}
	require.NoError(t, saveState(path, tracker))

	state, err := loadState(path)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, tracker, state.Tracker)
	assert.False(t, state.LastUpdated.IsZero())
}

func TestStateMissingFile(t *testing.T) {
	state, err := loadState(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStateDetectsEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, saveState(path, gauge.AnomalyTracker{CapacityOld: 42, CapacityMax: 1000}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), `"capacity_old": 42`, `"capacity_old": 99`, 1)
	require.NotEqual(t, string(data), edited)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	_, err = loadState(path)
	require.ErrorIs(t, err, errBadCRC)
}
