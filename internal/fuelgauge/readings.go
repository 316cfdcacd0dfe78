package fuelgauge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheCacophonyProject/tc2-fuel-gauge/gauge"
)

const readingsHeader = "time,voltage_mv,current_ma,ocv_mv,temperature_dc,soc_permille,capacity,charging,resistance_mode,v_empty\n"

func formatReading(t time.Time, r gauge.Reading) string {
	s := r.Sample
	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d,%t,%s,%s\n",
		t.Format("2006-01-02 15:04:05"),
		s.Voltage, s.Current, s.OCV, s.Temperature, r.RawSOC, r.Capacity,
		r.Tracker.Charging, r.ResistanceMode, r.Tracker.SWVEmpty)
}

func logReadingToFile(path string, t time.Time, r gauge.Reading) error {
	_, err := os.Stat(path)
	newFile := os.IsNotExist(err)
	if newFile {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if newFile {
		if _, err := f.WriteString(readingsHeader); err != nil {
			return err
		}
	}
	_, err = f.WriteString(formatReading(t, r))
	return err
}

// keepLastLines keeps the last `maxLines` lines of the specified file.
func keepLastLines(filePath string, maxLines int) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	tmpFile := filepath.Join(os.TempDir(), filepath.Base(filePath)+".tmp")
	err := os.Remove(tmpFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	commands := []string{"sh", "-c", fmt.Sprintf("tail -n %d %s > %s", maxLines, filePath, tmpFile)}
	cmd := exec.Command(commands[0], commands[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("err running '%s', %v, %v", strings.Join(commands, " "), string(out), err)
	}
	return os.Rename(tmpFile, filePath)
}
