package gauge

const (
	signBit = 0x80
	magMask = 0x7F
)

// SignMag is a calibration byte: bit 7 holds the sign and bits 0-6 the
// magnitude. Every offset word on the device uses this encoding.
type SignMag uint8

// SignMagFromInt encodes v, clamping the magnitude to 7 bits.
func SignMagFromInt(v int) SignMag {
	neg := v < 0
	if neg {
		v = -v
	}
	if v > magMask {
		v = magMask
	}
	s := SignMag(v)
	if neg && v != 0 {
		s |= signBit
	}
	return s
}

func (s SignMag) Negative() bool {
	return s&signBit != 0
}

func (s SignMag) Magnitude() int {
	return int(s & magMask)
}

// Int decodes the byte. A negative zero (0x80) decodes to 0.
func (s SignMag) Int() int {
	if s.Negative() {
		return -s.Magnitude()
	}
	return s.Magnitude()
}

// Word mirrors the byte into both halves of a 16 bit register value.
func (s SignMag) Word() uint16 {
	return uint16(s) | uint16(s)<<8
}

// applyOffset adds the signed offset held in the low byte of a calibration
// word to a raw register value.
func applyOffset(raw uint16, cal uint16) uint16 {
	v := int(raw) + SignMag(cal&0xFF).Int()
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
