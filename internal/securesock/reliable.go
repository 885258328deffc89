package securesock

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	reliableWrapTag = 0x80
	ackTag          = 0x81

	retransmitInterval = 200 * time.Millisecond
	maxRetries         = 5
)

type pendingSend struct {
	addr      *net.UDPAddr
	inner     []byte
	sentAt    time.Time
	retries   int
}

// reliableState tracks outbound reliable sends awaiting acknowledgment.
type reliableState struct {
	sock *Socket

	mu      sync.Mutex
	pending map[uint32]*pendingSend

	seq atomic.Uint32
}

func newReliableState(sock *Socket) *reliableState {
	return &reliableState{sock: sock, pending: make(map[uint32]*pendingSend)}
}

// wrapReliable frames inner as a RELIABLE_WRAP payload: [0x80][seq u32][inner].
func wrapReliable(seq uint32, inner []byte) []byte {
	buf := make([]byte, 5+len(inner))
	buf[0] = reliableWrapTag
	binary.BigEndian.PutUint32(buf[1:5], seq)
	copy(buf[5:], inner)
	return buf
}

// encodeAck builds an ACK payload for seq: [0x81][seq u32].
func encodeAck(seq uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = ackTag
	binary.BigEndian.PutUint32(buf[1:], seq)
	return buf
}

// SendReliableTo sends inner with retransmission to addr, returning the
// sequence number assigned to it.
func (s *Socket) SendReliableTo(addr *net.UDPAddr, inner []byte) (uint32, error) {
	seq := s.reliable.seq.Add(1)
	wrapped := wrapReliable(seq, inner)
	s.reliable.mu.Lock()
	s.reliable.pending[seq] = &pendingSend{addr: addr, inner: inner, sentAt: time.Now()}
	s.reliable.mu.Unlock()
	return seq, s.SendTo(addr, wrapped)
}

// SendReliable sends inner with retransmission to the socket's dialed peer.
func (s *Socket) SendReliable(inner []byte) (uint32, error) {
	seq := s.reliable.seq.Add(1)
	wrapped := wrapReliable(seq, inner)
	s.reliable.mu.Lock()
	s.reliable.pending[seq] = &pendingSend{inner: inner, sentAt: time.Now()}
	s.reliable.mu.Unlock()
	return seq, s.Send(wrapped)
}

// PendingCount reports how many reliable sends are awaiting acknowledgment.
// Exposed mainly for tests.
func (s *Socket) PendingCount() int {
	s.reliable.mu.Lock()
	defer s.reliable.mu.Unlock()
	return len(s.reliable.pending)
}

// tick resends pending entries older than retransmitInterval, abandoning any
// past maxRetries. When addrOverride is non-nil it overrides each entry's recorded
// destination (used by clients whose socket has a single fixed peer).
func (r *reliableState) tick(addrOverride *net.UDPAddr) {
	now := time.Now()
	var toResend []struct {
		seq  uint32
		p    *pendingSend
	}
	r.mu.Lock()
	for seq, p := range r.pending {
		if now.Sub(p.sentAt) < retransmitInterval {
			continue
		}
		if p.retries >= maxRetries {
			delete(r.pending, seq)
			continue
		}
		p.retries++
		p.sentAt = now
		toResend = append(toResend, struct {
			seq uint32
			p   *pendingSend
		}{seq, p})
	}
	r.mu.Unlock()

	for _, e := range toResend {
		wrapped := wrapReliable(e.seq, e.p.inner)
		dest := e.p.addr
		if addrOverride != nil {
			dest = addrOverride
		}
		if dest != nil {
			_ = r.sock.SendTo(dest, wrapped)
		} else {
			_ = r.sock.Send(wrapped)
		}
	}
}

func (r *reliableState) ack(seq uint32) {
	r.mu.Lock()
	delete(r.pending, seq)
	r.mu.Unlock()
}

// UnwrapResult describes the outcome of unwrapping one decrypted plaintext
// message through the reliable sub-channel.
type UnwrapResult struct {
	// Inner is the application payload, present when Kind == KindPlain or
	// KindInnerNeedsAck.
	Inner []byte
	Kind  UnwrapKind
}

// UnwrapKind classifies a decrypted plaintext for reliable-layer handling.
type UnwrapKind int

const (
	// KindPlain is an ordinary (non-wrapped) application message.
	KindPlain UnwrapKind = iota
	// KindInnerNeedsAck is a RELIABLE_WRAP payload: Inner holds the
	// application message and the caller must send an ACK for the sequence.
	KindInnerNeedsAck
	// KindAck is an ACK for a pending reliable send; the pending entry has
	// already been cleared.
	KindAck
	// KindMalformed is a RELIABLE_WRAP/ACK tag with an invalid length.
	KindMalformed
)

// UnwrapReliable inspects a decrypted plaintext message and, if it is part
// of the reliable sub-channel, processes it (clearing pending sends on ACK)
// and returns the inner application payload when one is present. Ordinary
// plaintext (not tagged 0x80/0x81) passes through unchanged as KindPlain.
func (s *Socket) UnwrapReliable(plain []byte) UnwrapResult {
	if len(plain) == 0 {
		return UnwrapResult{Kind: KindPlain, Inner: plain}
	}
	switch plain[0] {
	case reliableWrapTag:
		if len(plain) < 5 {
			return UnwrapResult{Kind: KindMalformed}
		}
		seq := binary.BigEndian.Uint32(plain[1:5])
		_ = seq // the caller sends the ACK, built with ReliableSeq and EncodeAck
		return UnwrapResult{Kind: KindInnerNeedsAck, Inner: plain[5:]}
	case ackTag:
		if len(plain) != 5 {
			return UnwrapResult{Kind: KindMalformed}
		}
		seq := binary.BigEndian.Uint32(plain[1:])
		s.reliable.ack(seq)
		return UnwrapResult{Kind: KindAck}
	default:
		return UnwrapResult{Kind: KindPlain, Inner: plain}
	}
}

// ReliableSeq extracts the sequence number from a RELIABLE_WRAP plaintext,
// for building the matching ACK.
func ReliableSeq(plain []byte) (uint32, bool) {
	if len(plain) < 5 || plain[0] != reliableWrapTag {
		return 0, false
	}
	return binary.BigEndian.Uint32(plain[1:5]), true
}

// EncodeAck builds the wire ACK payload for seq (exported for the dispatcher
// to send back immediately on receiving a RELIABLE_WRAP).
func EncodeAck(seq uint32) []byte { return encodeAck(seq) }
