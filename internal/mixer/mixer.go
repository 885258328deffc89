// Package mixer implements the stateless and per-member stateful audio
// primitives used by the channel mixer: silence detection, the single-pole
// DC-removal filter, soft-knee compression, peak normalization and the two
// clipping modes.
//
// All functions operate on stereo-interleaved float32 PCM (even indices are
// the left channel, odd indices the right). Buffers are caller-owned; these
// functions never allocate on the hot path.
package mixer

import "math"

// SilenceThreshold is the RMS level below which a frame is treated as
// silent and excluded from a channel's personalized mixes.
const SilenceThreshold = 0.001

// RMS returns the root-mean-square level of an interleaved stereo frame.
func RMS(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}

// IsSilent reports whether frame's RMS is below SilenceThreshold.
func IsSilent(frame []float32) bool {
	return RMS(frame) < SilenceThreshold
}

// DCAlpha is the pole of the single-pole DC-removal filter.
const DCAlpha = 0.995

// DCState holds the carried filter state for one member's stereo channel
// pair. The zero value is a valid starting state (silence).
type DCState struct {
	L, R float32
}

// RemoveDC applies the single-pole DC-removal filter to an interleaved
// stereo frame in place, advancing state across the call. The state (sL, sR)
// is a running estimate of each lane's DC offset; for each input sample pair
// (l, r):
//
//	sL = alpha*sL + (1-alpha)*l;  l' = l - sL
//	sR = alpha*sR + (1-alpha)*r;  r' = r - sR
//
// The updated (sL, sR) pair becomes the carried state for the next call, so
// a constant offset is tracked by the state and subtracted from the output.
func RemoveDC(frame []float32, state *DCState) {
	sL, sR := state.L, state.R
	for i := 0; i+1 < len(frame); i += 2 {
		sL = DCAlpha*sL + (1-DCAlpha)*frame[i]
		sR = DCAlpha*sR + (1-DCAlpha)*frame[i+1]
		frame[i] -= sL
		frame[i+1] -= sR
	}
	state.L, state.R = sL, sR
}

// Compress applies a soft-knee compressor in place: any sample with
// magnitude above threshold is attenuated toward the threshold by ratio.
// Samples at or below threshold are untouched.
func Compress(frame []float32, threshold, ratio float32) {
	for i, s := range frame {
		mag := s
		if mag < 0 {
			mag = -mag
		}
		if mag > threshold {
			sign := float32(1)
			if s < 0 {
				sign = -1
			}
			frame[i] = sign * (threshold + (mag-threshold)*ratio)
		}
	}
}

// Normalize finds the peak absolute sample in frame; if it is >= 1.0, every
// sample is divided by the peak so the new peak is exactly 1.0. Frames whose
// peak is already below 1.0 are left untouched (normalization only pulls
// clipping mixes down, it never boosts quiet ones).
func Normalize(frame []float32) {
	var peak float32
	for _, s := range frame {
		mag := s
		if mag < 0 {
			mag = -mag
		}
		if mag > peak {
			peak = mag
		}
	}
	if peak < 1.0 {
		return
	}
	inv := 1.0 / peak
	for i := range frame {
		frame[i] *= inv
	}
}

// ClipMode selects the clipping algorithm applied as the final mixer stage.
type ClipMode int

const (
	// ClipSoft applies tanh saturation: output magnitude is always < 1.
	ClipSoft ClipMode = iota
	// ClipHard clamps to [-1, 1]: output magnitude can equal 1 exactly.
	ClipHard
)

// Clip applies the configured clipping mode to frame in place.
func Clip(frame []float32, mode ClipMode) {
	switch mode {
	case ClipHard:
		for i, s := range frame {
			switch {
			case s > 1:
				frame[i] = 1
			case s < -1:
				frame[i] = -1
			}
		}
	default: // ClipSoft
		below1 := math.Nextafter32(1, 0)
		for i, s := range frame {
			v := float32(math.Tanh(float64(s)))
			// float32 rounding turns tanh of large inputs into exactly ±1.
			if v > below1 {
				v = below1
			} else if v < -below1 {
				v = -below1
			}
			frame[i] = v
		}
	}
}

// SoftSaturate applies tanh(s*drive) to a single sample, used by the client
// capture callback rather than the channel mixer.
func SoftSaturate(s, drive float32) float32 {
	return float32(math.Tanh(float64(s * drive)))
}

// PersonalizeGain returns the equal-loudness attenuation factor 1/sqrt(n)
// applied when summing n talkers into one listener's personalized mix.
// n must be > 0; callers must not invoke the mixer for zero talkers.
func PersonalizeGain(n int) float32 {
	return float32(1.0 / math.Sqrt(float64(n)))
}
