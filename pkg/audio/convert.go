package audio

import (
	"log/slog"
	"sync"
)

// Converter brings waveforms decoded at the sender's sample rate to the rate
// the speech engine expects. It logs a warning once, on the first waveform
// that actually needs conversion.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	// SourceRate is the sample rate of incoming waveforms in Hz. Zero means
	// "same as TargetRate".
	SourceRate int

	// TargetRate is the engine sample rate in Hz. Zero means
	// [EngineSampleRate].
	TargetRate int

	warnedMismatch sync.Once
}

// Convert returns w resampled to the target rate. If the rates already match
// w is returned unchanged (zero allocation).
func (c *Converter) Convert(w Waveform) Waveform {
	dst := c.TargetRate
	if dst <= 0 {
		dst = EngineSampleRate
	}
	src := c.SourceRate
	if src <= 0 || src == dst {
		return w
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio sample rate mismatch: resampling",
			"from_hz", src,
			"to_hz", dst,
		)
	})
	return Resample(w, src, dst)
}

// Resample converts w from srcRate to dstRate using linear interpolation. If
// either rate is non-positive, the rates are equal, or w has fewer than two
// samples, w is returned unchanged.
func Resample(w Waveform, srcRate, dstRate int) Waveform {
	if srcRate <= 0 || dstRate <= 0 {
		return w
	}
	if srcRate == dstRate || len(w) < 2 {
		return w
	}
	srcSamples := len(w)
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make(Waveform, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := float64(w[srcIdx])
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = float64(w[srcIdx+1])
		}
		out[i] = float32(s0*(1-frac) + s1*frac)
	}
	return out
}
