package gauge

const (
	settledCurrentMA = 40
	ocvErrorMV       = 30
	ocvErrorLimit    = 6
	ocvErrorTrigger  = 5
	voltageStepMV    = 15
	// Die temperature (°C) below which the low power-off level applies.
	lowTempBranchC = 15
	// Board temperature (0.1 °C) below which a voltage alert means empty.
	lowTempPowerOff = -100
)

// VEmptyMode tracks the software low voltage cutoff.
type VEmptyMode int

const (
	VEmptyNormal VEmptyMode = iota
	VEmptyActive
	VEmptyRecovery
)

func (m VEmptyMode) String() string {
	switch m {
	case VEmptyNormal:
		return "normal"
	case VEmptyActive:
		return "v-empty"
	case VEmptyRecovery:
		return "v-empty-recovery"
	}
	return "unknown"
}

// ResistanceMode is how the device compensates for internal resistance.
type ResistanceMode int

const (
	MixAuto ResistanceMode = iota
	MixManual
)

func (m ResistanceMode) String() string {
	if m == MixManual {
		return "manual"
	}
	return "auto"
}

// evaluateAnomaly checks the OCV against the terminal voltage and picks the
// resistance mode for this tick. The current sample becomes the previous one.
// A tick whose voltage or current could not be read is skipped.
func (e *Engine) evaluateAnomaly() {
	s := &e.sample
	t := &e.tracker
	c := e.conf
	if e.voltFailed || e.currFailed {
		e.log.Debug("Skipping anomaly check on a failed read")
		return
	}

	if e.settled() && abs(s.OCV-s.Voltage) > ocvErrorMV {
		t.IOCVErrorCount = min(t.IOCVErrorCount+1, ocvErrorLimit)
	} else {
		t.IOCVErrorCount = 0
	}

	if t.IOCVErrorCount > ocvErrorTrigger {
		if abs(s.PrevVoltage-s.Voltage) > voltageStepMV {
			t.IOCVErrorCount = 0
		} else {
			e.setResistanceMode(MixManual, c.Resistance.Manual)
		}
	} else {
		level := c.PowerOff.Normal
		if s.Temperature < lowTempBranchC*10 {
			level = c.PowerOff.Low
		}
		e.setResistanceMode(selectResistance(s.Voltage, s.PrevVoltage, !t.Charging, level, c.Resistance.Manual))
	}

	s.PrevVoltage = s.Voltage
	s.PrevCurrent = s.Current
}

// settled reports whether the load is low enough for the OCV to be compared
// with the terminal voltage.
func (e *Engine) settled() bool {
	i := e.sample.Current
	if abs(i) < settledCurrentMA {
		return true
	}
	topOff := e.conf.TopOff.Current
	return e.tracker.Charging && i < topOff && i > topOff/3
}

// selectResistance uses the manual resistance while discharging below the
// power-off level, halving it once the voltage falls below the extra margin.
func selectResistance(voltage, prevVoltage int, discharging bool, level PowerOffLevel, rs uint16) (ResistanceMode, uint16) {
	if !discharging || voltage >= level.Threshold || prevVoltage >= level.Threshold {
		return MixAuto, 0
	}
	if voltage < level.Threshold-level.Offset {
		return MixManual, rs / 2
	}
	return MixManual, rs
}

func (e *Engine) setResistanceMode(mode ResistanceMode, rs uint16) {
	if mode == MixManual {
		e.writeOnce(regParamRunUpd, 1)
		e.writeOnce(regRSManual, rs)
		e.writeOnce(regParamRunUpd, 0)
	}
	ctrl, err := readWord(e.port, regControl)
	if err != nil {
		e.log.Warnf("Can't switch resistance mode: %v", err)
		return
	}
	if mode == MixManual {
		ctrl |= ctrlMixMode | ctrlRSManual
	} else {
		ctrl = (ctrl | ctrlMixMode) &^ ctrlRSManual
	}
	if !e.writeOnce(regControl, ctrl) {
		return
	}
	if mode != e.rsMode || rs != e.rsValue {
		e.log.Infof("Resistance mode %s rs 0x%04x", mode, rs)
	}
	e.rsMode = mode
	e.rsValue = rs
}
