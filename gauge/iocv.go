package gauge

import "fmt"

const (
	iocvSlots = 6
	// Current (raw LSB) below which a sample counts as an offset reading.
	iocvOffsetMargin = 0x14
	// Current (raw LSB) below which a sample counts as settled, and above
	// which it counts as under load.
	iocvSettledMargin = 0x67
	iocvExtraOffset   = 4
	cbValidBit        = 0x10
)

// IOCVSnapshot holds the device's buffered voltage/current pairs. Values are
// raw register words.
type IOCVSnapshot struct {
	Status    uint16
	LBVoltage [iocvSlots]uint16
	LBCurrent [iocvSlots]uint16
	CBVoltage [iocvSlots]uint16
	CBCurrent [iocvSlots]uint16
}

func (s IOCVSnapshot) lbCount() int {
	return min(int(s.Status&0x0F), iocvSlots)
}

func (s IOCVSnapshot) cbValid() bool {
	return s.Status&cbValidBit != 0
}

// cbLast is the slot of the newest sample in the circular CB window.
func (s IOCVSnapshot) cbLast() int {
	last := int(s.Status&0x0F) - 7
	if last < 0 || last >= iocvSlots {
		return iocvSlots - 1
	}
	return last
}

// BufferEstimate is the result of scanning one buffer. Voltages are raw
// voltage words and currents raw signed LSBs.
type BufferEstimate struct {
	Samples    int
	AvgVoltage int
	MinVoltage int
	MaxVoltage int
	AvgCurrent int
	VSet       int
	ISet       int
	// Highest voltage seen under discharge load, 0 if none.
	INVMax int
	// Lowest voltage seen under charge load, 0 if none.
	IPVMin     int
	OffsetWord uint16
}

// IOCVEstimate is the outcome of EstimateIOCV.
type IOCVEstimate struct {
	LB BufferEstimate
	// CB is nil when the device didn't report a valid CB window.
	CB   *BufferEstimate
	VSet int
	ISet int
	// Seed is the raw voltage word for the manual OCV register, before the
	// voltage calibration offset is applied.
	Seed uint16
	// OffsetWord is the mirrored current offset word derived from ISet.
	OffsetWord uint16
}

// ReadIOCVSnapshot reads the status word and the four sample buffers.
func ReadIOCVSnapshot(p RegisterPort) (IOCVSnapshot, error) {
	var s IOCVSnapshot
	var err error
	if s.Status, err = readWord(p, regIOCVStatus); err != nil {
		return s, err
	}
	buffers := []struct {
		start Register
		dst   *[iocvSlots]uint16
	}{
		{regLBVoltage, &s.LBVoltage},
		{regLBCurrent, &s.LBCurrent},
		{regCBVoltage, &s.CBVoltage},
		{regCBCurrent, &s.CBCurrent},
	}
	for _, b := range buffers {
		for i := range b.dst {
			if b.dst[i], err = readWord(p, b.start+Register(i)); err != nil {
				return s, err
			}
		}
	}
	return s, nil
}

// EstimateIOCV computes the manual OCV seed from a buffer snapshot. It has no
// side effects so the same snapshot always gives the same seed.
func EstimateIOCV(s IOCVSnapshot) (IOCVEstimate, error) {
	n := s.lbCount()
	if n == 0 {
		return IOCVEstimate{}, ErrNoSamples
	}
	v, i := decodeBuffer(s.LBVoltage[:n], s.LBCurrent[:n])
	lb := scanBuffer(v, i)
	lb.VSet = max(lbVoltageSet(v, i, lb.AvgVoltage), lb.INVMax)
	lb.ISet = offsetCurrent(i, n-1)
	lb.OffsetWord = currentOffsetWord(lb.ISet)

	est := IOCVEstimate{LB: lb, VSet: lb.VSet, ISet: lb.ISet}
	if !s.cbValid() {
		est.Seed = uint16(lb.VSet)
		est.OffsetWord = currentOffsetWord(est.ISet)
		return est, nil
	}

	v, i = decodeBuffer(s.CBVoltage[:], s.CBCurrent[:])
	last := s.cbLast()
	cb := scanBuffer(v, i)
	cb.VSet = max(cbVoltageSet(v, i, last, cb.AvgVoltage), cb.INVMax)
	cb.ISet = offsetCurrent(i, last)
	cb.OffsetWord = currentOffsetWord(cb.ISet)
	est.CB = &cb

	if cb.ISet > lb.ISet {
		est.VSet = cb.VSet
		est.ISet = cb.ISet
	}
	// A CB window taken under load only contributes its loaded peak.
	if abs(cb.AvgCurrent) > iocvSettledMargin {
		est.Seed = uint16(max(lb.VSet, cb.INVMax))
	} else {
		est.Seed = uint16(est.VSet)
	}
	est.OffsetWord = currentOffsetWord(est.ISet)
	return est, nil
}

func (e IOCVEstimate) String() string {
	s := fmt.Sprintf("seed 0x%04x (%d mV) vset 0x%04x iset %d lb[n=%d vset 0x%04x iset %d]",
		e.Seed, DecodeVoltage(e.Seed), e.VSet, e.ISet, e.LB.Samples, e.LB.VSet, e.LB.ISet)
	if e.CB != nil {
		s += fmt.Sprintf(" cb[vset 0x%04x iset %d invmax 0x%04x]", e.CB.VSet, e.CB.ISet, e.CB.INVMax)
	}
	return s
}

func decodeBuffer(rawV, rawI []uint16) ([]int, []int) {
	v := make([]int, len(rawV))
	i := make([]int, len(rawI))
	for k := range rawV {
		v[k] = int(rawV[k])
		i[k] = decodeBufferCurrent(rawI[k])
	}
	return v, i
}

// scanBuffer fills in the averages and load extremes of a buffer.
func scanBuffer(v, i []int) BufferEstimate {
	b := BufferEstimate{Samples: len(v)}
	b.AvgVoltage, b.MinVoltage, b.MaxVoltage = trimmedMean(v)
	b.AvgCurrent, _, _ = trimmedMean(i)
	for k := range v {
		if abs(i[k]) <= iocvSettledMargin {
			continue
		}
		if i[k] < 0 {
			b.INVMax = max(b.INVMax, v[k])
		} else if b.IPVMin == 0 || v[k] < b.IPVMin {
			b.IPVMin = v[k]
		}
	}
	return b
}

// trimmedMean drops the highest and lowest values when there are more than two.
func trimmedMean(vals []int) (avg, lo, hi int) {
	if len(vals) == 0 {
		return 0, 0, 0
	}
	lo, hi = vals[0], vals[0]
	sum := 0
	for _, v := range vals {
		sum += v
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if len(vals) > 2 {
		return (sum - hi - lo) / (len(vals) - 2), lo, hi
	}
	return sum / len(vals), lo, hi
}

func settled(i int) bool {
	return abs(i) < iocvSettledMargin
}

// lbVoltageSet takes the highest voltage among the newest settled samples,
// looking back at most three, or avg when the newest sample isn't settled.
func lbVoltageSet(v, i []int, avg int) int {
	last := len(v) - 1
	if !settled(i[last]) {
		return avg
	}
	vset := v[last]
	if last >= 1 && settled(i[last-1]) {
		vset = max(vset, v[last-1])
		if last >= 2 && settled(i[last-2]) {
			vset = max(vset, v[last-2])
		}
	}
	return vset
}

// cbVoltageSet walks back around the ring from last to the newest settled
// sample, pairing it with the one before when that is settled too.
func cbVoltageSet(v, i []int, last, avg int) int {
	n := len(v)
	for k := 0; k < n; k++ {
		idx := (last - k + n) % n
		if !settled(i[idx]) {
			continue
		}
		vset := v[idx]
		prev := (idx - 1 + n) % n
		if k+1 < n && settled(i[prev]) {
			vset = max(vset, v[prev])
		}
		return vset
	}
	return avg
}

// offsetCurrent estimates the zero-load current reading.
func offsetCurrent(i []int, last int) int {
	iset := 0
	if len(i) > 3 {
		iset = (i[2] + i[3]) / 2
	}
	lastI := i[last]
	lastOK := abs(lastI) < iocvOffsetMargin
	isetOK := abs(iset) < iocvOffsetMargin
	switch {
	case lastOK && isetOK:
		return max(lastI, iset)
	case lastOK:
		return lastI
	case isetOK:
		return iset
	default:
		return 0
	}
}

// currentOffsetWord encodes the correction that cancels an offset of iset,
// halved and mirrored into both bytes.
func currentOffsetWord(iset int) uint16 {
	off := iset + iocvExtraOffset
	corr := abs(off) >> 1
	if off > 0 {
		corr = -corr
	}
	return SignMagFromInt(corr).Word()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
