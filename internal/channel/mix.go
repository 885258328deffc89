package channel

import (
	"voudp/internal/mixer"
	"voudp/internal/remote"
)

// Config carries the server's immutable mixing configuration (a subset of
// the server configuration relevant to the channel mixer).
type Config struct {
	Normalize         bool
	Compress          bool
	CompressThreshold float32
	CompressRatio     float32
	Clip              mixer.ClipMode
	FrameSamples      int
	MaxOpusBytes      int
}

// Sender delivers an encoded audio packet to one listener. Returning an
// error only gets it logged by the caller; it never aborts the tick.
type Sender func(r *remote.Remote, opusPayload []byte) error

// ErrorFunc receives non-fatal per-member errors encountered during a tick
// (encode failures, send failures) for logging.
type ErrorFunc func(key string, err error)

// RunTick executes one personalized-mix pass over c: pre-processes every
// non-silent member's input frame (clone + DC removal), then for every
// non-deafened listener sums the other members' pre-processed frames,
// applies compression/normalization/clipping, Opus-encodes, and sends.
// Every member's input frame is zeroed in place before returning.
func RunTick(c *Channel, cfg Config, send Sender, onErr ErrorFunc) {
	preprocessed := make(map[string][]float32, len(c.members))

	for key, frame := range c.inputFrames {
		if mixer.IsSilent(frame) {
			continue
		}
		clone := make([]float32, len(frame))
		copy(clone, frame)
		state := c.filterStates[key]
		mixer.RemoveDC(clone, state)
		preprocessed[key] = clone
	}

	for key, r := range c.members {
		if r.Deaf {
			continue
		}
		talkers := make([][]float32, 0, len(preprocessed))
		for tk, frame := range preprocessed {
			if tk == key {
				continue
			}
			talkers = append(talkers, frame)
		}
		if len(talkers) == 0 {
			continue
		}

		gain := mixer.PersonalizeGain(len(talkers))
		mix := make([]float32, cfg.FrameSamples*2)
		for _, frame := range talkers {
			for i, s := range frame {
				mix[i] += s * gain
			}
		}

		if cfg.Compress {
			mixer.Compress(mix, cfg.CompressThreshold, cfg.CompressRatio)
		}
		if cfg.Normalize {
			mixer.Normalize(mix)
		}
		mixer.Clip(mix, cfg.Clip)

		encoded, err := r.EncodeMix(mix, cfg.MaxOpusBytes)
		if err != nil {
			if onErr != nil {
				onErr(key, err)
			}
			continue
		}
		if encoded == nil {
			continue
		}
		if err := send(r, encoded); err != nil && onErr != nil {
			onErr(key, err)
		}
	}

	zero := make([]float32, cfg.FrameSamples*2)
	for key := range c.inputFrames {
		c.SetInputFrame(key, zero)
	}
}
