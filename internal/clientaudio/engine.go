// Package clientaudio implements the client-side capture/playback pipeline:
// two bounded rings bridging the OS audio driver and the network thread,
// soft-saturation on capture, and RMS-based voice-activity detection (§4.6).
package clientaudio

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"voudp/internal/mixer"
)

// ringFrames is the number of 20ms stereo frames of headroom each ring
// holds (§4.6: "capacity = FRAME_SAMPLES×10×2").
const ringFrames = 10

// TalkingThreshold is the RMS level above which the capture ring is
// considered to contain speech.
const TalkingThreshold = 0.07

// SaturateDrive is the tanh drive coefficient applied to captured samples.
const SaturateDrive = 0.8

// Engine owns the capture/playback streams and the two rings that bridge
// them to the network thread. A zero Engine is not usable; construct with
// New.
type Engine struct {
	frameSamples int

	inputRing  *ring
	outputRing *ring

	captureStream  *portaudio.Stream
	playbackStream *portaudio.Stream

	inputDeviceID  int
	outputDeviceID int

	muted    atomic.Bool
	deafened atomic.Bool
	talking  atomic.Bool
	running  atomic.Bool

	vadThreshold atomic.Uint32 // float32 bits

	stopCh chan struct{}
}

// New constructs an Engine sized for frameSamples per-channel samples per
// tick (stereo interleaved).
func New(frameSamples int) *Engine {
	capacity := frameSamples * 2 * ringFrames
	e := &Engine{
		frameSamples:   frameSamples,
		inputRing:      newRing(capacity),
		outputRing:     newRing(capacity),
		inputDeviceID:  -1,
		outputDeviceID: -1,
	}
	e.vadThreshold.Store(math.Float32bits(TalkingThreshold))
	return e
}

// SetTalkingThreshold adjusts the RMS level that counts as speech. Exposed
// as a tunable (§4.6 extension) without persisting across sessions.
func (e *Engine) SetTalkingThreshold(level float32) {
	e.vadThreshold.Store(math.Float32bits(level))
}

// SetMuted controls whether captured audio is pushed into the input ring.
func (e *Engine) SetMuted(muted bool) { e.muted.Store(muted) }

// SetDeafened controls whether the playback callback writes silence
// regardless of the output ring's contents.
func (e *Engine) SetDeafened(deafened bool) { e.deafened.Store(deafened) }

// Talking reports whether the most recent capture RMS crossed the
// voice-activity threshold.
func (e *Engine) Talking() bool { return e.talking.Load() }

// Start opens the capture and playback streams and begins the two
// driver-cadence loops. Stop must be called to release the streams.
func (e *Engine) Start(sampleRate float64, channels int) error {
	if e.running.Load() {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("clientaudio: list devices: %w", err)
	}
	inDev, err := resolveDevice(devices, e.inputDeviceID, portaudio.DefaultInputDevice)
	if err != nil {
		return fmt.Errorf("clientaudio: resolve input device: %w", err)
	}
	outDev, err := resolveDevice(devices, e.outputDeviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		return fmt.Errorf("clientaudio: resolve output device: %w", err)
	}

	captureBuf := make([]float32, e.frameSamples*channels)
	captureParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: channels,
			Latency:  inDev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: e.frameSamples,
	}
	captureStream, err := portaudio.OpenStream(captureParams, captureBuf)
	if err != nil {
		return fmt.Errorf("clientaudio: open capture stream: %w", err)
	}

	playbackBuf := make([]float32, e.frameSamples*2)
	playbackParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: 2,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: e.frameSamples,
	}
	playbackStream, err := portaudio.OpenStream(playbackParams, playbackBuf)
	if err != nil {
		captureStream.Close()
		return fmt.Errorf("clientaudio: open playback stream: %w", err)
	}

	if err := captureStream.Start(); err != nil {
		captureStream.Close()
		playbackStream.Close()
		return fmt.Errorf("clientaudio: start capture: %w", err)
	}
	if err := playbackStream.Start(); err != nil {
		captureStream.Stop()
		captureStream.Close()
		playbackStream.Close()
		return fmt.Errorf("clientaudio: start playback: %w", err)
	}

	e.captureStream = captureStream
	e.playbackStream = playbackStream
	e.stopCh = make(chan struct{})
	e.running.Store(true)

	go e.captureLoop(captureBuf, channels)
	go e.playbackLoop(playbackBuf)
	return nil
}

// Stop halts both streams and releases native resources.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	if e.captureStream != nil {
		e.captureStream.Stop()
		e.captureStream.Close()
	}
	if e.playbackStream != nil {
		e.playbackStream.Stop()
		e.playbackStream.Close()
	}
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// captureLoop is the capture-callback thread (§4.6): read one frame
// (mono duplicated to stereo), soft-saturate it and push it into the input
// ring unless muted, and refresh the talking flag from the ring's RMS.
func (e *Engine) captureLoop(buf []float32, channels int) {
	stereo := make([]float32, e.frameSamples*2)
	for e.running.Load() {
		if err := e.captureStream.Read(); err != nil {
			return
		}

		if channels == 1 {
			for i, s := range buf {
				stereo[2*i] = s
				stereo[2*i+1] = s
			}
		} else {
			copy(stereo, buf)
		}

		if !e.muted.Load() {
			drive := float32(SaturateDrive)
			for i, s := range stereo {
				stereo[i] = mixer.SoftSaturate(s, drive)
			}
			e.inputRing.push(stereo)
		}

		threshold := math.Float32frombits(e.vadThreshold.Load())
		snap := e.inputRing.snapshot()
		e.talking.Store(len(snap) > 0 && mixer.RMS(snap) >= threshold)
	}
}

// playbackLoop is the playback-callback thread (§4.6): pop one sample per
// output slot, substituting silence when the ring is empty or deafened.
func (e *Engine) playbackLoop(buf []float32) {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		deaf := e.deafened.Load()
		for i := range buf {
			if deaf {
				buf[i] = 0
				continue
			}
			buf[i] = e.outputRing.popOne()
		}

		if err := e.playbackStream.Write(); err != nil {
			return
		}
	}
}

// DrainFrame removes one full stereo frame from the input ring for the
// network thread to encode. ok is false if fewer than a full frame is
// buffered yet.
func (e *Engine) DrainFrame() (frame []float32, ok bool) {
	return e.inputRing.popN(e.frameSamples * 2)
}

// QueuePlayback pushes a decoded stereo frame onto the output ring for the
// playback loop to drain.
func (e *Engine) QueuePlayback(frame []float32) {
	e.outputRing.push(frame)
}

// InputRingLen reports buffered input samples, for network-thread backlog
// checks and tests.
func (e *Engine) InputRingLen() int { return e.inputRing.len() }

// OutputRingLen reports buffered output samples, for diagnostics and tests.
func (e *Engine) OutputRingLen() int { return e.outputRing.len() }

// DrainPlayback removes up to n samples from the output ring. It exists for
// callers (tests, a headless reference client with no audio driver) that
// need to consume decoded audio without a running playbackLoop.
func (e *Engine) DrainPlayback(n int) (frame []float32, ok bool) {
	return e.outputRing.popN(n)
}
