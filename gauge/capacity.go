package gauge

// GetCapacity reads the SOC and returns it as a whole percentage after
// scaling. With raw set the unscaled SOC in tenths of a percent is returned.
func (e *Engine) GetCapacity(raw bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	soc, err := e.readSOC()
	if raw {
		return soc
	}
	if err != nil {
		return e.tracker.CapacityOld
	}
	return e.scaleCapacity(soc)
}

// ResetCapacity drops any dynamic scaling and reseeds the reported capacity
// on the next tick.
func (e *Engine) ResetCapacity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conf != nil {
		e.tracker.CapacityMax = e.conf.Capacity.Max
	}
	e.tracker.CapacityOld = 0
	e.tracker.InitialUpdateOfSOC = true
	e.log.Info("Capacity scaling reset")
}

// CalculateDynamicScale rescales capacity so the current SOC reports as
// target percent. It is called when charging reports full and returns the
// new full scale SOC.
func (e *Engine) CalculateDynamicScale(target int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conf == nil {
		return 0
	}
	raw, _ := e.readSOC()
	c := e.conf.Capacity
	clamped := min(max(raw, c.Max-c.MaxMargin), c.Max+c.MaxMargin)
	target = max(target, 0)
	e.tracker.CapacityMax = clamped * 100 / (target + 1)
	e.tracker.CapacityOld = target
	e.log.Infof("Dynamic scale: raw SOC %d, capacity max %d for %d%%", raw, e.tracker.CapacityMax, target)
	return e.tracker.CapacityMax
}

// scaleCapacity turns a raw SOC (0-1000) into the reported percentage.
func (e *Engine) scaleCapacity(raw int) int {
	if e.conf == nil {
		return min(max(raw, 0), 1000) / 10
	}
	c := e.conf.Capacity
	t := &e.tracker

	v := raw
	if c.CalculationType&(CapacityScale|CapacityDynamicScale) != 0 {
		v = linearScale(v, c.Min, t.CapacityMax)
	}
	v = min(max(v, 0), 1000) / 10

	if !t.Charging && !t.HWVEmpty && t.SWVEmpty == VEmptyActive {
		v = 0
	}
	if t.SWVEmpty == VEmptyRecovery && v == t.CapacityOld {
		e.log.Info("Capacity caught up, v-empty cleared")
		t.SWVEmpty = VEmptyNormal
	}

	if t.InitialUpdateOfSOC && t.SWVEmpty == VEmptyNormal {
		t.InitialUpdateOfSOC = false
		t.CapacityOld = v
		return v
	}
	if c.CalculationType&(CapacityAtomic|CapacitySkipAbnormal) != 0 {
		v = stepCapacity(t.CapacityOld, v, c.CalculationType, t.Charging)
	}
	t.CapacityOld = v

	if e.socAlert && v > e.conf.Alert.SOC {
		e.socAlert = false
	}
	return v
}

func linearScale(raw, lo, hi int) int {
	if hi-lo <= 0 {
		return raw
	}
	if raw < lo {
		return 0
	}
	return (raw - lo) * 1000 / (hi - lo)
}

// stepCapacity limits the change from old to at most one percent, and with
// skip-abnormal set refuses to rise while discharging.
func stepCapacity(old, v int, flags uint8, charging bool) int {
	if flags&CapacityAtomic != 0 {
		switch {
		case v > old:
			v = old + 1
		case v < old:
			v = old - 1
		}
	}
	if flags&CapacitySkipAbnormal != 0 && !charging && v > old {
		v = old
	}
	return v
}
