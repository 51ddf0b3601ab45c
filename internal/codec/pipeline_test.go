package codec

import (
	"math"
	"testing"
)

func TestDownlinkToRealtimeLength(t *testing.T) {
	// One 20 ms telephony frame (160 mu-law bytes at 8 kHz) becomes 20 ms of
	// 24 kHz PCM.
	mulaw := make([]byte, 160)
	pcm := DownlinkToRealtime(mulaw)
	if len(pcm) != 480 {
		t.Errorf("downlink on 160 bytes produced %d samples, want 480", len(pcm))
	}
}

func TestUplinkToTelephonyLength(t *testing.T) {
	f := NewDecimationFilter()
	pcm := make([]int16, 480)
	mulaw := UplinkToTelephony(pcm, f)
	if len(mulaw) != 160 {
		t.Errorf("uplink on 480 samples produced %d bytes, want 160", len(mulaw))
	}
}

func TestUplinkPassesVoiceBand(t *testing.T) {
	// A 1 kHz tone sits well inside the telephony passband and must survive
	// the filter and compander with most of its energy.
	f := NewDecimationFilter()
	in := make([]int16, 4800)
	for i := range in {
		in[i] = int16(16000 * math.Sin(2*math.Pi*1000*float64(i)/24000))
	}

	out := DecodeMuLaw(UplinkToTelephony(in, f))

	// Skip the filter warm-up, then compare RMS levels.
	settled := out[decimationTaps:]
	var inPower, outPower float64
	for _, s := range in {
		inPower += float64(s) * float64(s)
	}
	for _, s := range settled {
		outPower += float64(s) * float64(s)
	}
	inRMS := math.Sqrt(inPower / float64(len(in)))
	outRMS := math.Sqrt(outPower / float64(len(settled)))

	if outRMS < 0.5*inRMS {
		t.Errorf("1 kHz tone attenuated too much: in RMS %.0f, out RMS %.0f", inRMS, outRMS)
	}
}
