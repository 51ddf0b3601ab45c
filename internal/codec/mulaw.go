package codec

const (
	// muLawBias is the companding bias added before locating the segment.
	muLawBias = 0x84 // 132

	// muLawClip is the maximum magnitude representable after biasing.
	muLawClip = 32635
)

// muLawSegments holds the upper boundary of each exponent segment for the
// biased sample magnitude.
var muLawSegments = [8]int32{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

// muLawDecodeTable maps every mu-law byte to its linear PCM-16 value.
// Built once at process start; decoding is a single table lookup per byte.
var muLawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		muLawDecodeTable[i] = expandMuLaw(byte(i))
	}
}

// expandMuLaw computes the linear value for one mu-law byte from the
// standard bias/segment formula. Used only to build the lookup table.
func expandMuLaw(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	value := (int32(mantissa)<<3 + muLawBias) << exponent
	value -= muLawBias

	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// DecodeMuLawSample expands a single mu-law byte to a linear PCM-16 sample.
// Total function: every byte value has a defined output.
func DecodeMuLawSample(u byte) int16 {
	return muLawDecodeTable[u]
}

// DecodeMuLaw expands mu-law bytes to linear PCM-16 samples, one sample per
// input byte.
func DecodeMuLaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, u := range data {
		samples[i] = muLawDecodeTable[u]
	}
	return samples
}

// EncodeMuLawSample compands a linear PCM-16 sample to one mu-law byte.
// The round trip through DecodeMuLawSample is lossy within the 8-bit
// compander's quantization step; that is a property of the encoding, not an
// error.
func EncodeMuLawSample(sample int16) byte {
	value := int32(sample)

	sign := byte(0)
	if value < 0 {
		value = -value
		sign = 0x80
	}
	if value > muLawClip {
		value = muLawClip
	}
	value += muLawBias

	exponent := byte(7)
	for i, end := range muLawSegments {
		if value <= end {
			exponent = byte(i)
			break
		}
	}

	mantissa := byte(value>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// EncodeMuLaw compands linear PCM-16 samples to mu-law bytes, one byte per
// input sample.
func EncodeMuLaw(samples []int16) []byte {
	data := make([]byte, len(samples))
	for i, s := range samples {
		data[i] = EncodeMuLawSample(s)
	}
	return data
}
