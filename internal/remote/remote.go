// Package remote holds the server-side per-peer state: an Opus codec pair,
// liveness tracking, mask/mute/deafen flags, and the jitter buffer of
// already-decoded PCM frames that feeds the channel mixer.
//
// A Remote is owned exclusively by the server's endpoint-to-remote map and
// is only ever touched from the tick thread; nothing here takes a lock.
package remote

import (
	"fmt"
	"net"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// JitterMax is the maximum number of decoded PCM frames buffered per remote.
const JitterMax = 50

// State is a remote's position in the New -> Unmasked -> Masked lifecycle.
type State int

const (
	StateNew State = iota
	StateUnmasked
	StateMasked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUnmasked:
		return "unmasked"
	case StateMasked:
		return "masked"
	default:
		return "unknown"
	}
}

// Remote is one connected voice peer.
type Remote struct {
	Addr *net.UDPAddr

	encoder *opus.Encoder
	decoder *opus.Decoder

	ChannelID    uint32
	Mask         string
	Mute         bool
	Deaf         bool
	State        State
	LastActivity time.Time

	jitter *jitterQueue
}

// New constructs a Remote with a fresh stereo Opus encoder/decoder pair at
// sampleRate, Application=Audio. Codec state is never rebuilt for the
// lifetime of the remote, even across channel changes, so adaptive
// predictor state survives a JOIN to a different channel.
func New(addr *net.UDPAddr, sampleRate int) (*Remote, error) {
	enc, err := opus.NewEncoder(sampleRate, 2, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("remote: new encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, 2)
	if err != nil {
		return nil, fmt.Errorf("remote: new decoder: %w", err)
	}
	return &Remote{
		Addr:         addr,
		encoder:      enc,
		decoder:      dec,
		State:        StateNew,
		LastActivity: time.Now(),
		jitter:       newJitterQueue(JitterMax),
	}, nil
}

// Touch refreshes last-activity on any received datagram.
func (r *Remote) Touch() { r.LastActivity = time.Now() }

// IdleFor reports how long has elapsed since the remote's last activity.
func (r *Remote) IdleFor(now time.Time) time.Duration { return now.Sub(r.LastActivity) }

// DecodeAndPush decodes an Opus frame and pushes it to the back of the
// jitter buffer. frameSamples is the required per-channel sample count
// (FRAME_SAMPLES); frames decoding to any other length are rejected. If the
// jitter buffer is full the frame is dropped (receiver has fallen behind)
// and ok reports false with a nil error.
func (r *Remote) DecodeAndPush(opusFrame []byte, frameSamples int) (ok bool, err error) {
	pcm := make([]float32, frameSamples*2)
	n, derr := r.decoder.DecodeFloat32(opusFrame, pcm)
	if derr != nil {
		return false, fmt.Errorf("remote: opus decode: %w", derr)
	}
	if n != frameSamples {
		return false, fmt.Errorf("remote: decoded %d samples, want %d", n, frameSamples)
	}
	return r.jitter.push(pcm), nil
}

// PopFrame returns this tick's contribution: the front of the jitter buffer,
// or a zero-filled frame of length frameSamples*2 if the buffer is empty.
func (r *Remote) PopFrame(frameSamples int) []float32 {
	if f, ok := r.jitter.pop(); ok {
		return f
	}
	return make([]float32, frameSamples*2)
}

// JitterLen reports the current jitter buffer depth, for tests and metrics.
func (r *Remote) JitterLen() int { return r.jitter.len() }

// EncodeMix Opus-encodes a personalized mix buffer for this remote's
// outbound audio packet. Returns nil, nil if the encoded size is 0 (encoder
// reported nothing to send); never returns more than 400 bytes unless the
// caller's maxBytes argument is larger.
func (r *Remote) EncodeMix(mix []float32, maxBytes int) ([]byte, error) {
	out := make([]byte, maxBytes)
	n, err := r.encoder.EncodeFloat32(mix, out)
	if err != nil {
		// OpusEncodeError: treat encoded length as 0, skip send.
		return nil, fmt.Errorf("remote: opus encode: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return out[:n], nil
}
