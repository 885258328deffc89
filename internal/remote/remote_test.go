package remote

import (
	"net"
	"testing"
	"time"
)

func mustAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", "127.0.0.1:37549")
	if err != nil {
		t.Fatalf("resolve addr: %v", err)
	}
	return addr
}

func TestNewRemoteStartsInStateNew(t *testing.T) {
	r, err := New(mustAddr(t), 48000)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if r.State != StateNew {
		t.Fatalf("expected StateNew, got %v", r.State)
	}
	if r.JitterLen() != 0 {
		t.Fatalf("expected empty jitter buffer, got %d", r.JitterLen())
	}
}

func TestPopFrameReturnsZerosWhenEmpty(t *testing.T) {
	r, err := New(mustAddr(t), 48000)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	frame := r.PopFrame(960)
	if len(frame) != 1920 {
		t.Fatalf("expected 1920 samples, got %d", len(frame))
	}
	for _, s := range frame {
		if s != 0 {
			t.Fatalf("expected zero-filled frame, got %v", frame[:4])
		}
	}
}

func TestEncodeDecodeRoundTripThroughOpus(t *testing.T) {
	r, err := New(mustAddr(t), 48000)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	mix := make([]float32, 1920)
	for i := range mix {
		mix[i] = 0.1
	}
	encoded, err := r.EncodeMix(mix, 400)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded == nil {
		t.Fatal("expected non-nil encoded payload for non-silent mix")
	}

	ok, err := r.DecodeAndPush(encoded, 960)
	if err != nil {
		t.Fatalf("decode+push: %v", err)
	}
	if !ok {
		t.Fatal("expected push to succeed into an empty jitter buffer")
	}
	if r.JitterLen() != 1 {
		t.Fatalf("expected 1 buffered frame, got %d", r.JitterLen())
	}
}

func TestIdleForAdvancesWithTime(t *testing.T) {
	r, err := New(mustAddr(t), 48000)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	r.LastActivity = time.Now().Add(-10 * time.Second)
	if d := r.IdleFor(time.Now()); d < 9*time.Second {
		t.Fatalf("expected idle duration near 10s, got %v", d)
	}
}
