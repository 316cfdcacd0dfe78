package gauge

// Hardware scaling between the cancel current and the voltage offset LSB.
const voltCancelScale = 13

// calibrate recomputes the per tick calibration words from the configured
// base values and writes them. Each write is a single attempt.
func (e *Engine) calibrate() {
	c := e.conf
	s := e.sample
	dieGap := s.Temperature/10 - c.TempStd
	boardGap := s.BoardTemperature/10 - c.TempStd

	e.cal.MixFactor = e.mixFactor()
	e.writeOnce(regRSMixFactor, e.cal.MixFactor)

	volt := e.voltageCalibration(dieGap)
	if e.writeOnce(regVoltageCal, volt) {
		e.cal.VoltageCal = volt
	}

	off := compensateOffset(SignMag(e.offsetBase&0xFF), dieGap, c.TempCompensation).Word()
	if e.writeOnce(regCurrentOffset, off) {
		e.cal.CurrentOffset = off
	}

	slope := compensateSlope(c.CurrentSlope, dieGap, boardGap, c.TempCompensation)
	if e.writeOnce(regCurrentCal, slope) {
		e.cal.CurrentSlope = slope
	}
	e.log.Debugf("Calibration volt 0x%04x offset 0x%04x slope 0x%04x mix 0x%04x", volt, off, slope, e.cal.MixFactor)
}

func (e *Engine) mixFactor() uint16 {
	r := e.conf.Resistance
	if e.tracker.Charging || e.sample.Current < r.MixFactorCurrentLimit {
		return r.MixFactorCharge
	}
	return r.MixFactorDischarge
}

// voltageCalibration cancels the IR drop of the sense path from the voltage
// offset while current is flowing, and corrects the slope byte for die
// temperature.
func (e *Engine) voltageCalibration(dieGap int) uint16 {
	c := e.conf
	vc := c.VOffsetCancel
	current := e.sample.Current
	slope := int(c.VoltageCal >> 8)
	off := SignMag(c.VoltageCal & 0xFF)

	switch {
	case e.tracker.Charging && vc.EnableCharging && current > vc.Level:
		off = cancelOffset(off, off, current, vc.MOhm)
	case !e.tracker.Charging && vc.EnableDischarging && current < -vc.Level:
		sign := off
		if c.Features.LegacyDischargeSignCheck {
			sign = SignMag(e.cal.VoltageCal & 0xFF)
		}
		off = cancelOffset(off, sign, current, vc.MOhm)
	}
	slope = clampByte(slope + c.TempCompensation.VoltageSlope.delta(dieGap))
	return uint16(slope)<<8 | uint16(off)
}

// cancelOffset adds current/(mohm*13) to the offset. The sign applied to the
// existing magnitude is taken from sign.
func cancelOffset(off, sign SignMag, current, mohm int) SignMag {
	if mohm <= 0 {
		return off
	}
	v := off.Magnitude()
	if sign.Negative() {
		v = -v
	}
	return SignMagFromInt(v + current/(mohm*voltCancelScale))
}

func compensateOffset(base SignMag, gap int, tc TempCompensation) SignMag {
	v := base.Int()
	switch {
	case gap > 0:
		v += tc.OffsetHigh.delta(gap)
	case gap < 0:
		v += tc.OffsetLow.delta(gap)
	}
	return SignMagFromInt(v)
}

// compensateSlope adjusts the positive (low byte) and negative (high byte)
// current gains for die and board temperature.
func compensateSlope(base uint16, dieGap, boardGap int, tc TempCompensation) uint16 {
	p := int(base & 0xFF)
	n := int(base >> 8)
	dp, dn := slopeDelta(dieGap, tc.DieSlopeHigh, tc.DieSlopeLow)
	bp, bn := slopeDelta(boardGap, tc.BoardSlopeHigh, tc.BoardSlopeLow)
	p = clampByte(p + dp + bp)
	n = clampByte(n + dn + bn)
	return uint16(n)<<8 | uint16(p)
}

func slopeDelta(gap int, high, low SlopeCoefficient) (pos, neg int) {
	switch {
	case gap > 0:
		return high.Positive.delta(gap), high.Negative.delta(gap)
	case gap < 0:
		return low.Positive.delta(gap), low.Negative.delta(gap)
	}
	return 0, 0
}

func clampByte(v int) int {
	return min(max(v, 0), 0xFF)
}
