package clientaudio

// NoiseGateThreshold is the per-sample magnitude below which a captured
// sample is zeroed before Opus encoding (§4.6).
const NoiseGateThreshold = 0.001

// NoiseGate zeroes every sample in frame whose magnitude is below
// NoiseGateThreshold, in place. Applied by the network thread immediately
// before encoding, not by the capture loop.
func NoiseGate(frame []float32) {
	for i, s := range frame {
		if s < NoiseGateThreshold && s > -NoiseGateThreshold {
			frame[i] = 0
		}
	}
}
