package netclient

import (
	"net"
	"testing"
	"time"

	"gopkg.in/hraban/opus.v2"

	"voudp/internal/clientaudio"
	"voudp/internal/protocol"
	"voudp/internal/securesock"
)

const testFrameSamples = 960

func recvWithin(t *testing.T, server *securesock.Socket, timeout time.Duration) ([]byte, *net.UDPAddr) {
	t.Helper()
	buf := make([]byte, securesock.MaxPlaintext)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, addr, err := server.RecvFrom(buf)
		if err == securesock.ErrWouldBlock {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, addr
	}
	t.Fatal("timed out waiting for datagram")
	return nil, nil
}

func TestJoinAndMaskReachServer(t *testing.T) {
	server, err := securesock.Listen("127.0.0.1:0", "voudp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	engine := clientaudio.New(testFrameSamples)
	c, err := Dial(server.LocalAddr().String(), "voudp", 48000, testFrameSamples, engine)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := c.Join(7); err != nil {
		t.Fatalf("join: %v", err)
	}
	plain, _ := recvWithin(t, server, time.Second)
	id, err := protocol.DecodeJoin(plain[1:])
	if err != nil || plain[0] != byte(protocol.TagJoin) || id != 7 {
		t.Fatalf("expected JOIN(7), got tag=%#x id=%d err=%v", plain[0], id, err)
	}

	if err := c.SetMask("alice"); err != nil {
		t.Fatalf("set mask: %v", err)
	}
	plain, _ = recvWithin(t, server, time.Second)
	name, err := protocol.DecodeMask(plain[1:])
	if err != nil || name != "alice" {
		t.Fatalf("expected MASK(alice), got %q err=%v", name, err)
	}
}

func TestIncomingAudioFillsOutputRing(t *testing.T) {
	server, err := securesock.Listen("127.0.0.1:0", "voudp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	engine := clientaudio.New(testFrameSamples)
	c, err := Dial(server.LocalAddr().String(), "voudp", 48000, testFrameSamples, engine)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := c.Join(1); err != nil {
		t.Fatalf("join: %v", err)
	}
	_, clientAddr := recvWithin(t, server, time.Second)

	enc, err := opus.NewEncoder(48000, 2, opus.AppAudio)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	pcm := make([]float32, testFrameSamples*2)
	for i := range pcm {
		pcm[i] = 0.1
	}
	opusBuf := make([]byte, 400)
	n, err := enc.EncodeFloat32(pcm, opusBuf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := server.SendTo(clientAddr, protocol.EncodeAudio(opusBuf[:n])); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go c.Run(stop)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := engine.DrainPlayback(testFrameSamples * 2); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for decoded audio in output ring")
}
