package voiceserver

import (
	"testing"
	"time"

	"gopkg.in/hraban/opus.v2"

	"voudp/internal/protocol"
	"voudp/internal/securesock"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.Passphrase = "testpass"
	cfg.TimeoutSecs = 60
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go s.Run(stop)
	return s
}

func dialClient(t *testing.T, s *Server) *securesock.Socket {
	t.Helper()
	c, err := securesock.Dial(s.Addr().String(), "testpass")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func recvPlain(t *testing.T, c *securesock.Socket, timeout time.Duration) []byte {
	t.Helper()
	buf := make([]byte, securesock.MaxPlaintext)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, _, err := c.RecvFrom(buf)
		if err == securesock.ErrWouldBlock {
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out
	}
	t.Fatal("timed out waiting for datagram")
	return nil
}

// recvTag receives datagrams until one decodes (after stripping the
// reliable sub-channel's envelope, if present, and acking it) to the
// requested tag. Anything else is discarded.
func recvTag(t *testing.T, c *securesock.Socket, want protocol.Tag, timeout time.Duration) []byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		plain := recvPlain(t, c, time.Until(deadline))
		if len(plain) == 0 {
			continue
		}
		res := c.UnwrapReliable(plain)
		switch res.Kind {
		case securesock.KindAck:
			continue
		case securesock.KindMalformed:
			continue
		case securesock.KindInnerNeedsAck:
			if seq, ok := securesock.ReliableSeq(plain); ok {
				_ = c.Send(securesock.EncodeAck(seq))
			}
			if protocol.Tag(res.Inner[0]) == want {
				return res.Inner
			}
		default:
			if protocol.Tag(plain[0]) == want {
				return plain
			}
		}
	}
	t.Fatalf("timed out waiting for tag %#x", byte(want))
	return nil
}

func TestJoinAndMixDeliversAudioToOtherMember(t *testing.T) {
	s := newTestServer(t)

	alice := dialClient(t, s)
	bob := dialClient(t, s)

	if err := alice.Send(protocol.EncodeJoin(DefaultChannelID)); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.Send(protocol.EncodeJoin(DefaultChannelID)); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	// Let the server process both joins before audio starts flowing.
	time.Sleep(30 * time.Millisecond)

	enc, err := opus.NewEncoder(int(DefaultSampleRate), 2, opus.AppAudio)
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	pcm := make([]float32, 960*2)
	for i := range pcm {
		pcm[i] = 0.2
	}
	opusBuf := make([]byte, 400)
	n, err := enc.EncodeFloat32(pcm, opusBuf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Alice talks continuously; Bob should receive mixed audio frames.
	stop := time.Now().Add(2 * time.Second)
	go func() {
		for time.Now().Before(stop) {
			_ = alice.Send(protocol.EncodeAudio(opusBuf[:n]))
			time.Sleep(20 * time.Millisecond)
		}
	}()

	frame := recvTag(t, bob, protocol.TagAudio, 2*time.Second)
	if len(frame) < 2 {
		t.Fatal("expected a non-empty AUDIO frame")
	}
}

func TestMaskTriggersFlowJoinNotice(t *testing.T) {
	s := newTestServer(t)

	alice := dialClient(t, s)
	bob := dialClient(t, s)

	if err := alice.Send(protocol.EncodeJoin(DefaultChannelID)); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := bob.Send(protocol.EncodeJoin(DefaultChannelID)); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := alice.Send(protocol.EncodeMask("alice")); err != nil {
		t.Fatalf("alice mask: %v", err)
	}

	plain := recvTag(t, bob, protocol.TagFlowJoin, time.Second)
	mask, err := protocol.DecodeFlowMask(plain[1:])
	if err != nil || mask != "alice" {
		t.Fatalf("expected FLOW_JOIN(alice), got %q err=%v", mask, err)
	}
}
