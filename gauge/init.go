package gauge

import (
	"errors"
	"time"
)

const (
	resetSettle = 100 * time.Millisecond
	seedSettle  = 20 * time.Millisecond
)

// program runs the full programming sequence. Writes are retried and the
// sequence always runs to the end; every failure is collected in the
// returned error.
func (e *Engine) program(isSurge bool) error {
	c := e.conf
	var errs []error
	write := func(reg Register, val uint16) {
		if err := writeVerified(e.port, reg, val); err != nil {
			e.log.Warn(err)
			errs = append(errs, err)
		}
	}
	e.log.Infof("Programming fuel gauge (surge %t)", isSurge)

	write(regReset, initMark)
	if status, err := readWord(e.port, regOpStatus); err == nil {
		write(regOpStatus, status|disableReInit)
	} else {
		errs = append(errs, err)
	}
	write(regParamCtrl, paramUnlockCode)
	for i, v := range c.RCE {
		write(regRCE0+Register(i), v)
	}
	write(regDTCD, c.DTCD)
	write(regRSManual, c.Resistance.Manual)
	write(regVITPeriod, c.VITPeriod)

	write(regParamCtrl, paramUnlockCode|tableLen)
	for t, table := range [batteryTables][]uint16{c.DischargeTable, c.QTable} {
		start := regTableStart + Register(t*tableStride)
		for i, v := range table {
			if err := writeTableEntry(e.port, start+Register(i), v); err != nil {
				e.log.Error(err)
				errs = append(errs, err)
			}
		}
	}

	e.cal.MixFactor = e.mixFactor()
	write(regRSMixFactor, e.cal.MixFactor)
	write(regRSMax, c.Resistance.Max)
	write(regRSMin, c.Resistance.Min)
	write(regMixRate, c.Mix.Rate)
	write(regMixInitBlank, c.Mix.InitBlank)
	write(regCapacityMin, c.DeviceCapacity.Min)
	write(regCapacityCap, c.DeviceCapacity.Cap)
	write(regMisc, c.Misc)
	write(regTopOffSOC, c.TopOff.SOC)

	e.programControl()
	write(regParamCtrl, paramLockCode|tableLen)

	write(regIOCVManual, e.ocvSeed(isSurge))
	sleepFn(seedSettle)

	write(regCycleConfig, c.Cycle.word())
	write(regAutoRSMan, c.autoRSWord())
	write(regDataVersion, c.DataVersion)

	for i := 0; i < currentChannels; i++ {
		write(regDPOffset0+Register(i), c.DP[i].Offset)
		write(regDPSlope0+Register(i), c.DP[i].Slope)
	}
	for i := 0; i < currentChannels; i++ {
		write(regAlgOffset0+Register(i), c.Alg[i].Offset)
		write(regAlgSlope0+Register(i), c.Alg[i].Slope)
	}
	e.cal.VoltageCal = c.VoltageCal
	write(regVoltageCal, e.cal.VoltageCal)
	write(regCurrentOffset, e.offsetBase)
	e.cal.CurrentOffset = e.offsetBase
	e.cal.CurrentSlope = c.CurrentSlope
	write(regCurrentCal, e.cal.CurrentSlope)

	write(regVoltageAlarm, EncodeVoltage(c.Alert.VoltageMV))
	write(regSOCAlarm, uint16(min(max(c.Alert.SOC, 0), 100))<<8)
	write(regTempAlarm, uint16(tempByte(c.Alert.TempHigh))<<8|uint16(tempByte(c.Alert.TempLow)))
	write(regInterruptMask, c.Alert.InterruptMask)

	return errors.Join(errs...)
}

// programControl forces mix mode, temperature measurement and manual OCV on.
// The other bits are kept from the register, or from the configured control
// value when the device is at its power-on default.
func (e *Engine) programControl() {
	ctrl, err := readWord(e.port, regControl)
	if err != nil {
		e.log.Warnf("Reading control register: %v", err)
		ctrl = e.conf.ControlValue
	} else if ctrl == ctrlDefault {
		e.log.Debugf("Control at power-on default, replacing with 0x%04x", e.conf.ControlValue)
		ctrl = e.conf.ControlValue
	}
	e.log.Debugf("Control was 0x%04x", ctrl)
	ctrl = ctrl&^ctrlForced | ctrlMixMode | ctrlTempMeasure | ctrlManualOCV
	if e.conf.TopOff.Enable {
		ctrl |= ctrlTopOffSOC
	}
	if err := e.port.WriteWord(regControl, ctrl); err != nil {
		e.log.Errorf("Writing control register 0x%04x: %v", ctrl, err)
	}
}

// ocvSeed returns the manual OCV word. A surge reinit uses the last OCV;
// otherwise the IOCV buffers are used, falling back to the OCV when they are
// empty or unreadable.
func (e *Engine) ocvSeed(isSurge bool) uint16 {
	e.offsetBase = e.conf.CurrentOffset
	if isSurge {
		return EncodeVoltage(e.lastOCV())
	}
	snap, err := ReadIOCVSnapshot(e.port)
	var est IOCVEstimate
	if err == nil {
		est, err = EstimateIOCV(snap)
	}
	if err != nil {
		e.log.Warnf("Seeding OCV from last reading: %v", err)
		return EncodeVoltage(e.lastOCV())
	}
	e.lastIOCV = &est
	e.log.Debugf("IOCV %s", est)
	if e.conf.Features.FullOffsetAdaptation {
		e.offsetBase = est.OffsetWord
	}
	return applyOffset(est.Seed, e.conf.VoltageCal)
}

// tempByte converts 0.1 °C to the alarm register's two's complement °C.
func tempByte(dc int) uint8 {
	return uint8(int8(min(max(dc/10, -128), 127)))
}

func (e *Engine) lastOCV() int {
	if e.sample.OCV != 0 {
		return e.sample.OCV
	}
	if ocv := e.readOCV(); ocv != 0 {
		return ocv
	}
	return FallbackVoltage
}
