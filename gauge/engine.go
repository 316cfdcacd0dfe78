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

package gauge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeviceSample is the latest set of measurements, overwritten every tick.
type DeviceSample struct {
	Voltage          int `json:"voltage_mv"`
	AvgVoltage       int `json:"avg_voltage_mv"`
	PrevVoltage      int `json:"prev_voltage_mv"`
	Current          int `json:"current_ma"`
	AvgCurrent       int `json:"avg_current_ma"`
	PrevCurrent      int `json:"prev_current_ma"`
	OCV              int `json:"ocv_mv"`
	Temperature      int `json:"temperature_dc"`
	BoardTemperature int `json:"board_temperature_dc"`
	SOC              int `json:"soc_permille"`
	Cycle            int `json:"cycle"`
}

// CalibrationState holds the calibration words last written to the device.
type CalibrationState struct {
	VoltageCal    uint16 `json:"voltage_cal"`
	CurrentOffset uint16 `json:"current_offset"`
	CurrentSlope  uint16 `json:"current_slope"`
	MixFactor     uint16 `json:"mix_factor"`
}

// AnomalyTracker is the state carried between ticks and across
// re-initialisation.
type AnomalyTracker struct {
	IOCVErrorCount     int        `json:"iocv_error_count"`
	SWVEmpty           VEmptyMode `json:"sw_v_empty"`
	HWVEmpty           bool       `json:"hw_v_empty"`
	Initialised        bool       `json:"initialised"`
	Charging           bool       `json:"charging"`
	CapacityOld        int        `json:"capacity_old"`
	CapacityMax        int        `json:"capacity_max"`
	InitialUpdateOfSOC bool       `json:"initial_update_of_soc"`
}

// Status is a snapshot of the engine state.
type Status struct {
	DeviceID       uint16           `json:"device_id"`
	Sample         DeviceSample     `json:"sample"`
	Tracker        AnomalyTracker   `json:"tracker"`
	Calibration    CalibrationState `json:"calibration"`
	ResistanceMode ResistanceMode   `json:"resistance_mode"`
	VoltageAlert   bool             `json:"voltage_alert"`
	SOCAlert       bool             `json:"soc_alert"`
}

// Reading is the result of one Poll.
type Reading struct {
	Status
	RawSOC        int  `json:"raw_soc"`
	Capacity      int  `json:"capacity"`
	AbnormalReset bool `json:"abnormal_reset"`
}

// RecoveryOutcome describes a re-initialisation triggered by CheckAbnormalReset.
type RecoveryOutcome struct {
	OpStatus uint16
	Marker   uint16
	Err      error
}

// AlertFlags are the interrupt sources found by ClearAlert.
type AlertFlags struct {
	Raw        uint16 `json:"raw"`
	LowVoltage bool   `json:"low_voltage"`
	LowSOC     bool   `json:"low_soc"`
	LowTemp    bool   `json:"low_temp"`
	HighTemp   bool   `json:"high_temp"`
}

// Engine owns the gauge state. All methods are safe for concurrent use; each
// holds the engine lock for the whole register transaction.
type Engine struct {
	mu   sync.Mutex
	port RegisterPort
	log  *logrus.Logger
	conf *Config

	deviceID uint16
	sample   DeviceSample
	tracker  AnomalyTracker
	cal      CalibrationState
	// Current offset word the per tick temperature compensation starts from.
	offsetBase uint16
	rsMode     ResistanceMode
	rsValue    uint16
	voltAlert  bool
	socAlert   bool
	lastIOCV   *IOCVEstimate
	// Set while the latest voltage or current read fell back.
	voltFailed bool
	currFailed bool
}

// NewEngine returns an engine using port for register access. A nil logger
// uses the logrus standard logger.
func NewEngine(port RegisterPort, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		port:    port,
		log:     log,
		tracker: AnomalyTracker{InitialUpdateOfSOC: true},
	}
}

// Init validates conf and brings the device to a programmed state. The device
// is only reprogrammed when it reports that it needs it or its data version
// doesn't match conf.
func (e *Engine) Init(conf *Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if conf == nil {
		return fmt.Errorf("%w: no fuel gauge config", ErrConfigMissing)
	}
	if err := conf.Validate(); err != nil {
		e.tracker.Initialised = false
		return err
	}
	c := *conf
	e.conf = &c
	if e.tracker.CapacityMax <= c.Capacity.Min {
		e.tracker.CapacityMax = c.Capacity.Max
	}

	id, err := readWord(e.port, regDeviceID)
	if err != nil {
		return fmt.Errorf("reading device ID: %w", err)
	}
	e.deviceID = id
	e.log.Infof("Fuel gauge device ID 0x%04x", id)

	e.readOCV()
	if e.needsProgramming() {
		if err := e.reinit(false); err != nil {
			e.log.Warnf("Fuel gauge programmed with errors: %v", err)
		}
	} else {
		e.adoptDevice()
	}
	e.readVoltage()
	e.readCurrent()
	e.readTemperature()
	return nil
}

// Reinit reprograms the device from the stored config. A surge reinit seeds
// the manual OCV from the last OCV reading instead of the IOCV buffers. Write
// failures are returned but the engine stays usable.
func (e *Engine) Reinit(isSurge bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reinit(isSurge)
}

func (e *Engine) reinit(isSurge bool) error {
	if e.conf == nil {
		return ErrNotInitialised
	}
	e.tracker.Initialised = false
	err := e.program(isSurge)
	e.tracker.Initialised = true
	e.tracker.InitialUpdateOfSOC = true
	e.rsMode = MixAuto
	e.rsValue = 0
	return err
}

func (e *Engine) needsProgramming() bool {
	status, err := readWord(e.port, regOpStatus)
	if err != nil {
		e.log.Warnf("Assuming fuel gauge needs programming: %v", err)
		return true
	}
	if status&initCheckMask != disableReInit {
		e.log.Info("Fuel gauge reports it needs initialisation")
		return true
	}
	version, err := readWord(e.port, regDataVersion)
	if err != nil || version != e.conf.DataVersion {
		e.log.Infof("Fuel gauge data version 0x%04x, want 0x%04x", version, e.conf.DataVersion)
		return true
	}
	return false
}

// adoptDevice takes on the calibration of an already programmed device.
func (e *Engine) adoptDevice() {
	e.log.Info("Fuel gauge already programmed, skipping table writes")
	e.cal = CalibrationState{
		VoltageCal:    e.conf.VoltageCal,
		CurrentOffset: e.conf.CurrentOffset,
		CurrentSlope:  e.conf.CurrentSlope,
		MixFactor:     e.mixFactor(),
	}
	e.offsetBase = e.conf.CurrentOffset
	if e.conf.Features.FullOffsetAdaptation {
		if off, err := readWord(e.port, regCurrentOffset); err == nil {
			e.offsetBase = off
			e.cal.CurrentOffset = off
		}
	}
	e.rsMode = MixAuto
	if ctrl, err := readWord(e.port, regControl); err == nil && ctrl&ctrlRSManual != 0 {
		e.rsMode = MixManual
	}
	e.tracker.Initialised = true
	e.tracker.InitialUpdateOfSOC = true
}

// CheckAbnormalReset re-initialises the device if it has lost its
// programming. It returns nil when nothing needed doing.
func (e *Engine) CheckAbnormalReset() *RecoveryOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkAbnormalReset()
}

func (e *Engine) checkAbnormalReset() *RecoveryOutcome {
	if !e.tracker.Initialised {
		return nil
	}
	status, err := readWord(e.port, regOpStatus)
	if err != nil {
		e.log.Warnf("Skipping reset check: %v", err)
		return nil
	}
	marker, err := readWord(e.port, regReset)
	if err != nil {
		e.log.Warnf("Skipping reset check: %v", err)
		return nil
	}
	if status&initCheckMask == disableReInit && marker&resetMarkerMask != 0 {
		return nil
	}

	e.log.Errorf("Abnormal fuel gauge reset, op status 0x%04x marker 0x%04x", status, marker)
	out := &RecoveryOutcome{OpStatus: status, Marker: marker}
	if err := writeVerified(e.port, regReset, softResetCode); err != nil {
		e.log.Warnf("Reset command not acknowledged: %v", err)
	}
	sleepFn(resetSettle)
	out.Err = e.reinit(false)
	if out.Err != nil {
		e.log.Errorf("Recovery reprogramming had errors: %v", out.Err)
	}
	return out
}

func (e *Engine) ReadVoltage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readVoltage()
}

// readVoltage returns the fallback on a failed read and leaves the sample
// and averages as they were.
func (e *Engine) readVoltage() int {
	raw, err := readWord(e.port, regVoltage)
	e.voltFailed = err != nil
	if err != nil {
		e.log.Warnf("Using fallback voltage: %v", err)
		return FallbackVoltage
	}
	v := DecodeVoltage(raw)
	s := &e.sample
	s.AvgVoltage = average(s.AvgVoltage, s.PrevVoltage, v)
	s.Voltage = v
	if e.conf != nil && e.tracker.SWVEmpty == VEmptyActive && v >= e.conf.Alert.RecoveryMV {
		e.log.Infof("Voltage %d mV above recovery level, leaving v-empty", v)
		e.tracker.SWVEmpty = VEmptyRecovery
	}
	if e.tracker.HWVEmpty && e.conf != nil && v >= e.conf.Alert.RecoveryMV {
		e.tracker.HWVEmpty = false
		e.voltAlert = false
	}
	return v
}

func (e *Engine) ReadCurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readCurrent()
}

func (e *Engine) readCurrent() int {
	raw, err := readWord(e.port, regCurrent)
	e.currFailed = err != nil
	if err != nil {
		e.log.Warnf("Using fallback current: %v", err)
		return FallbackCurrent
	}
	c := DecodeCurrent(raw)
	s := &e.sample
	s.AvgCurrent = average(s.AvgCurrent, s.PrevCurrent, c)
	s.Current = c
	return c
}

func (e *Engine) ReadTemperature() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readTemperature()
}

func (e *Engine) readTemperature() int {
	t := FallbackTemperature
	if raw, err := readWord(e.port, regTemperature); err != nil {
		e.log.Warnf("Using fallback temperature: %v", err)
	} else {
		t = DecodeTemperature(raw)
	}
	e.sample.Temperature = t
	return t
}

func (e *Engine) ReadCycle() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readCycle()
}

func (e *Engine) readCycle() int {
	c := FallbackCycle
	if raw, err := readWord(e.port, regCycle); err != nil {
		e.log.Warnf("Using fallback cycle count: %v", err)
	} else {
		c = DecodeCycle(raw)
	}
	e.sample.Cycle = c
	return c
}

// ReadOCV returns the device OCV, keeping the previous value on a read error.
func (e *Engine) ReadOCV() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOCV()
}

func (e *Engine) readOCV() int {
	raw, err := readWord(e.port, regOCV)
	if err != nil {
		e.log.Warnf("Keeping previous OCV: %v", err)
		return e.sample.OCV
	}
	e.sample.OCV = DecodeVoltage(raw)
	return e.sample.OCV
}

// ReadSOC returns the device SOC in tenths of a percent, then runs the
// anomaly check and calibration for this tick. If the device had to be
// recovered the cached SOC is returned with ErrAbnormalReset.
func (e *Engine) ReadSOC() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readSOC()
}

func (e *Engine) readSOC() (int, error) {
	if out := e.checkAbnormalReset(); out != nil {
		return e.sample.SOC, ErrAbnormalReset
	}
	soc := FallbackSOC
	if raw, err := readWord(e.port, regSOC); err != nil {
		e.log.Warnf("Using fallback SOC: %v", err)
	} else {
		soc = DecodeSOC(raw)
	}
	if e.voltAlert && e.sample.BoardTemperature < lowTempPowerOff {
		e.log.Debugf("Board at %d dC with voltage alert, reporting empty", e.sample.BoardTemperature)
		soc = 0
	}
	if e.conf != nil && e.tracker.Initialised {
		e.evaluateAnomaly()
		e.calibrate()
	}
	e.sample.SOC = soc
	return soc, nil
}

func (e *Engine) SetCharging(charging bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tracker.Charging != charging {
		e.log.Debugf("Charging %t", charging)
	}
	e.tracker.Charging = charging
}

// SetBoardTemperature sets the ambient board temperature in 0.1 °C.
func (e *Engine) SetBoardTemperature(dc int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sample.BoardTemperature = dc
}

// ClearAlert reads and clears the interrupt flags, latching voltage and SOC
// alerts for the following ticks.
func (e *Engine) ClearAlert() (AlertFlags, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, err := readWord(e.port, regInterrupt)
	if err != nil {
		return AlertFlags{}, err
	}
	flags := AlertFlags{
		Raw:        raw,
		LowVoltage: raw&intLowVoltage != 0,
		LowSOC:     raw&intLowSOC != 0,
		LowTemp:    raw&intLowTemp != 0,
		HighTemp:   raw&intHighTemp != 0,
	}
	if err := e.port.WriteWord(regInterrupt, 0); err != nil {
		e.log.Warnf("Failed to clear interrupt flags: %v", err)
	}
	if flags.LowVoltage {
		e.voltAlert = true
		if e.conf != nil && e.conf.Alert.UseHardwareVEmpty {
			e.tracker.HWVEmpty = true
		} else if e.tracker.SWVEmpty == VEmptyNormal {
			e.log.Info("Low voltage alert, entering v-empty")
			e.tracker.SWVEmpty = VEmptyActive
		}
	}
	if flags.LowSOC {
		e.socAlert = true
	}
	return flags, nil
}

// Poll reads every measurement, runs the tick and scales the capacity. The
// returned error is ErrAbnormalReset when the device had to be recovered, in
// which case Capacity holds the last reported value.
func (e *Engine) Poll() (Reading, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conf == nil {
		return Reading{}, ErrNotInitialised
	}
	e.readVoltage()
	e.readCurrent()
	e.readOCV()
	e.readTemperature()
	e.readCycle()
	soc, err := e.readSOC()
	r := Reading{RawSOC: soc}
	if errors.Is(err, ErrAbnormalReset) {
		r.AbnormalReset = true
		r.Capacity = e.tracker.CapacityOld
	} else {
		r.Capacity = e.scaleCapacity(soc)
	}
	r.Status = e.status()
	return r, err
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status()
}

func (e *Engine) status() Status {
	return Status{
		DeviceID:       e.deviceID,
		Sample:         e.sample,
		Tracker:        e.tracker,
		Calibration:    e.cal,
		ResistanceMode: e.rsMode,
		VoltageAlert:   e.voltAlert,
		SOCAlert:       e.socAlert,
	}
}

// LastIOCV returns the estimate used by the most recent programming, if any.
func (e *Engine) LastIOCV() *IOCVEstimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastIOCV == nil {
		return nil
	}
	est := *e.lastIOCV
	return &est
}

// RestoreTracker loads state saved from a previous run. Initialisation and
// charging state always come from the live device.
func (e *Engine) RestoreTracker(t AnomalyTracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.IOCVErrorCount = min(max(t.IOCVErrorCount, 0), ocvErrorLimit)
	e.tracker.SWVEmpty = t.SWVEmpty
	e.tracker.CapacityOld = min(max(t.CapacityOld, 0), 100)
	if t.CapacityMax > 0 {
		e.tracker.CapacityMax = t.CapacityMax
	}
}

// writeOnce is a single attempt write used by the per tick paths.
func (e *Engine) writeOnce(reg Register, val uint16) bool {
	if err := e.port.WriteWord(reg, val); err != nil {
		e.log.Warnf("Writing 0x%04x to register 0x%02x: %v", val, uint8(reg), err)
		return false
	}
	return true
}
