package mixer

import (
	"math"
	"testing"
)

func TestIsSilent(t *testing.T) {
	zero := make([]float32, 1920)
	if !IsSilent(zero) {
		t.Fatal("all-zero frame should be silent")
	}
	loud := make([]float32, 1920)
	for i := range loud {
		loud[i] = 0.5
	}
	if IsSilent(loud) {
		t.Fatal("loud frame should not be silent")
	}
}

func TestRemoveDCConvergesOnConstantOffset(t *testing.T) {
	var state DCState
	const offset = float32(0.2)
	frame := make([]float32, 960)
	for i := range frame {
		frame[i] = offset
	}
	for tick := 0; tick < 200; tick++ {
		buf := make([]float32, len(frame))
		copy(buf, frame)
		RemoveDC(buf, &state)
		if tick == 199 {
			var sum float64
			for _, s := range buf {
				sum += float64(s)
			}
			mean := sum / float64(len(buf))
			if math.Abs(mean) > 0.01 {
				t.Fatalf("DC component did not settle: mean=%v", mean)
			}
		}
	}
}

func TestCompressLeavesQuietSamplesUntouched(t *testing.T) {
	frame := []float32{0.1, -0.1, 0.9, -0.9}
	Compress(frame, 0.5, 0.5)
	if frame[0] != 0.1 || frame[1] != -0.1 {
		t.Fatalf("quiet samples should be untouched, got %v", frame[:2])
	}
	want := float32(0.5 + (0.9-0.5)*0.5)
	if math.Abs(float64(frame[2]-want)) > 1e-6 {
		t.Fatalf("compressed sample = %v, want %v", frame[2], want)
	}
	if frame[3] != -want {
		t.Fatalf("compressed negative sample = %v, want %v", frame[3], -want)
	}
}

func TestNormalizeOnlyPullsDownPeaks(t *testing.T) {
	quiet := []float32{0.1, -0.2, 0.3}
	orig := append([]float32(nil), quiet...)
	Normalize(quiet)
	for i := range quiet {
		if quiet[i] != orig[i] {
			t.Fatalf("quiet frame should be untouched: %v vs %v", quiet, orig)
		}
	}

	loud := []float32{2.0, -1.0, 0.5}
	Normalize(loud)
	if loud[0] != 1.0 {
		t.Fatalf("peak should normalize to 1.0, got %v", loud[0])
	}
}

func TestClipSoftStaysUnderOne(t *testing.T) {
	frame := []float32{5, -5, 0}
	Clip(frame, ClipSoft)
	for _, s := range frame {
		if s >= 1 || s <= -1 {
			t.Fatalf("soft clip should stay strictly within (-1,1), got %v", s)
		}
	}
}

func TestClipHardCanReachUnity(t *testing.T) {
	frame := []float32{5, -5, 0.5}
	Clip(frame, ClipHard)
	if frame[0] != 1 || frame[1] != -1 {
		t.Fatalf("hard clip should clamp to +/-1, got %v %v", frame[0], frame[1])
	}
	if frame[2] != 0.5 {
		t.Fatalf("hard clip should leave in-range samples untouched, got %v", frame[2])
	}
}

func TestPersonalizeGain(t *testing.T) {
	if g := PersonalizeGain(1); math.Abs(float64(g-1)) > 1e-6 {
		t.Fatalf("gain for 1 talker should be 1, got %v", g)
	}
	if g := PersonalizeGain(4); math.Abs(float64(g-0.5)) > 1e-6 {
		t.Fatalf("gain for 4 talkers should be 0.5, got %v", g)
	}
}
