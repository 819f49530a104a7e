package audio

// Peak returns the largest absolute sample value in w, or 0 for an empty
// waveform. A NaN sample makes the peak NaN, which no threshold classifies
// as silent; [Decode] never produces one.
func Peak(w Waveform) float32 {
	var peak float32
	for _, s := range w {
		if s != s {
			return s
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Gate classifies waveforms as silent or active by peak amplitude.
//
// The threshold is an exclusive lower bound for activity: a waveform whose
// peak equals Threshold is active, anything strictly below it is silent.
// Typical values range from 0.001 for quiet close-talk microphones to 0.1 for
// setups that must reject room noise.
type Gate struct {
	Threshold float32
}

// IsSilent reports whether w should skip transcription.
func (g Gate) IsSilent(w Waveform) bool {
	return Peak(w) < g.Threshold
}

// Classify returns the peak amplitude of w together with the silence
// decision, so callers that log or record the peak scan the samples once.
func (g Gate) Classify(w Waveform) (peak float32, silent bool) {
	peak = Peak(w)
	return peak, peak < g.Threshold
}
