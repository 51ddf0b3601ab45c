package codec

// DownlinkToRealtime converts one chunk of 8 kHz mu-law telephony audio to
// 24 kHz PCM-16 for the realtime endpoint. Stateless; chunks may be converted
// independently.
func DownlinkToRealtime(mulaw []byte) []int16 {
	return Upsample3x(DecodeMuLaw(mulaw))
}

// UplinkToTelephony converts one chunk of 24 kHz PCM-16 realtime audio to
// 8 kHz mu-law for the telephony leg. The caller owns the filter and must use
// the same instance for every chunk of one stream; resetting it mid-stream
// discards the FIR history and produces an audible discontinuity.
func UplinkToTelephony(pcm []int16, filter *DecimationFilter) []byte {
	return EncodeMuLaw(filter.Downsample(pcm))
}
