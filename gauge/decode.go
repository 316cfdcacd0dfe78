package gauge

// Values returned when a measurement register can't be read.
const (
	FallbackVoltage     = 4000
	FallbackCurrent     = 0
	FallbackTemperature = 0
	FallbackSOC         = 500
	FallbackCycle       = 0
)

// DecodeVoltage converts a voltage (or OCV) register word to mV.
// Bits 11-14 hold whole volts and bits 0-10 the fraction in 1/2048 V.
func DecodeVoltage(raw uint16) int {
	v := int((raw&0x7800)>>11) * 1000
	return v + int(raw&0x07FF)*1000/2048
}

// EncodeVoltage is the inverse of DecodeVoltage, used to seed the manual
// OCV register from a known OCV.
func EncodeVoltage(mV int) uint16 {
	if mV < 0 {
		mV = 0
	}
	raw := mV * 2048 / 1000
	if raw > 0x7FFF {
		raw = 0x7FFF
	}
	return uint16(raw)
}

// DecodeCurrent converts a current register word to mA. Bit 15 is the sign.
func DecodeCurrent(raw uint16) int {
	c := int((raw&0x1800)>>11) * 1000
	c += int(raw&0x07FF) * 1000 / 2048
	if raw&0x8000 != 0 {
		c = -c
	}
	return c
}

// DecodeTemperature converts a temperature register word to 0.1 °C.
func DecodeTemperature(raw uint16) int {
	t := int((raw&0x7F00)>>8) * 10
	t += int(raw&0x00F0) * 10 / 256
	if raw&0x8000 != 0 {
		t = -t
	}
	return t
}

// DecodeSOC converts the SOC register word to tenths of a percent. A set
// bit 15 marks the value invalid and decodes to 0.
func DecodeSOC(raw uint16) int {
	if raw&0x8000 != 0 {
		return 0
	}
	soc := int((raw&0x7F00)>>8) * 10
	return soc + int(raw&0x00FF)*10/256
}

// DecodeCycle returns the charge cycle count held in the low 10 bits.
func DecodeCycle(raw uint16) int {
	return int(raw & 0x03FF)
}

// decodeBufferCurrent decodes an IOCV buffer current: 14 bit magnitude with
// the sign in bit 14. Units are raw LSBs.
func decodeBufferCurrent(raw uint16) int {
	mag := int(raw & 0x3FFF)
	if raw&0x4000 != 0 {
		return -mag
	}
	return mag
}
