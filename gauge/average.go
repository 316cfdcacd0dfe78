package gauge

// average blends a new sample into the running average using the last two
// samples. A zero sample is treated as missing.
func average(prevAvg, prevSample, sample int) int {
	switch {
	case prevAvg == 0:
		return sample
	case sample == 0 && prevSample == 0:
		return sample
	case sample == 0:
		return (prevAvg + prevSample) / 2
	case prevSample == 0:
		return (prevAvg + sample) / 2
	default:
		return (2*prevAvg + prevSample + sample) / 4
	}
}
