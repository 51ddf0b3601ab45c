package codec

import "math"

const (
	// decimationTaps is the FIR filter length used for anti-aliased 3x
	// decimation.
	decimationTaps = 96

	// decimationFactor is the downsampling ratio between the realtime leg
	// (24 kHz) and the telephony leg (8 kHz).
	decimationFactor = 3

	// decimationCutoffHz is the lowpass cutoff of the anti-aliasing filter,
	// chosen to preserve the 300-3400 Hz telephony band.
	decimationCutoffHz = 3400.0

	// decimationInputRate is the sample rate the filter coefficients are
	// designed for.
	decimationInputRate = 24000.0

	// coeffFracBits is the fixed-point precision of the filter coefficients.
	coeffFracBits = 15
)

// decimationCoeffs holds the Q15 fixed-point coefficients of the
// Blackman-windowed sinc lowpass, normalized to unity DC gain. Computed once
// at process start.
var decimationCoeffs [decimationTaps]int32

func init() {
	var taps [decimationTaps]float64
	center := float64(decimationTaps-1) / 2.0
	fc := decimationCutoffHz / decimationInputRate

	sum := 0.0
	for n := 0; n < decimationTaps; n++ {
		x := float64(n) - center

		// Windowed sinc; the center tap's sinc limit is 2*fc.
		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}

		w := 0.42 -
			0.5*math.Cos(2*math.Pi*float64(n)/float64(decimationTaps-1)) +
			0.08*math.Cos(4*math.Pi*float64(n)/float64(decimationTaps-1))

		taps[n] = sinc * w
		sum += taps[n]
	}

	// Normalize to unity DC gain before quantizing.
	for n := 0; n < decimationTaps; n++ {
		decimationCoeffs[n] = int32(math.Round(taps[n] / sum * float64(int32(1)<<coeffFracBits)))
	}
}

// Upsample3x converts PCM-16 samples to three times the sample rate using
// linear interpolation. For each pair of consecutive input samples it emits
// the original sample followed by two interpolated values at 1/3 and 2/3 of
// the way to the next sample; the final sample repeats itself. Output length
// is always exactly 3x the input length.
func Upsample3x(samples []int16) []int16 {
	out := make([]int16, 0, len(samples)*3)
	for i, s := range samples {
		next := s
		if i+1 < len(samples) {
			next = samples[i+1]
		}
		delta := int32(next) - int32(s)
		out = append(out,
			s,
			int16(int32(s)+delta/3),
			int16(int32(s)+2*delta/3),
		)
	}
	return out
}

// Downsample3x reduces the sample rate by 3x by keeping every 3rd sample.
// No anti-aliasing is applied; this is the legacy decimation path kept for
// callers that predate DecimationFilter. Prefer DecimationFilter.Downsample
// for voice audio.
func Downsample3x(samples []int16) []int16 {
	out := make([]int16, 0, (len(samples)+decimationFactor-1)/decimationFactor)
	for i := 0; i < len(samples); i += decimationFactor {
		out = append(out, samples[i])
	}
	return out
}

// DecimationFilter performs anti-aliased 3x decimation through a 96-tap FIR
// lowpass. The filter keeps its circular sample history and decimation phase
// across calls, so feeding a stream chunk by chunk produces the same output
// as feeding it at once. One filter instance belongs to exactly one
// downsampling stream; call Reset between calls instead of allocating a new
// instance.
type DecimationFilter struct {
	history [decimationTaps]int16
	pos     int
	phase   int
}

// NewDecimationFilter creates a decimation filter with empty history.
func NewDecimationFilter() *DecimationFilter {
	return &DecimationFilter{}
}

// Reset clears the sample history and phase for reuse on a new stream.
func (f *DecimationFilter) Reset() {
	f.history = [decimationTaps]int16{}
	f.pos = 0
	f.phase = 0
}

// Downsample pushes samples through the filter and returns the decimated
// output. Output samples are clamped to the PCM-16 range.
func (f *DecimationFilter) Downsample(samples []int16) []int16 {
	out := make([]int16, 0, len(samples)/decimationFactor+1)
	for _, s := range samples {
		f.history[f.pos] = s
		f.pos = (f.pos + 1) % decimationTaps

		if f.phase == 0 {
			out = append(out, f.convolve())
		}
		f.phase = (f.phase + 1) % decimationFactor
	}
	return out
}

// convolve computes the FIR output for the current history, newest sample
// first.
func (f *DecimationFilter) convolve() int16 {
	var acc int64
	idx := f.pos
	for i := 0; i < decimationTaps; i++ {
		idx--
		if idx < 0 {
			idx = decimationTaps - 1
		}
		acc += int64(decimationCoeffs[i]) * int64(f.history[idx])
	}

	v := acc >> coeffFracBits
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}
