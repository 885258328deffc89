// Package securesock implements the connectionless secure datagram socket:
// ChaCha20-Poly1305 AEAD over raw UDP, PBKDF2-derived keys, prefix+counter
// nonces, and an opt-in reliable sub-channel with sequence/ack/retransmit.
//
// The socket deliberately sits directly on net.UDPConn rather than a
// higher-level transport library: the wire layout in §4.1 is a fixed byte
// contract this package owns end to end, and framing/handshake machinery
// from a general-purpose transport would only get in the way of it.
package securesock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Salt is the fixed PBKDF2 salt used for key derivation.
const Salt = "voudp"

// PBKDF2Iterations is the number of HMAC-SHA256 rounds used to derive the
// socket's AEAD key from the shared passphrase.
const PBKDF2Iterations = 600_000

// MaxPlaintext is the largest plaintext payload this socket will carry.
const MaxPlaintext = 2048

const (
	nonceSize  = chacha20poly1305.NonceSize // 12
	tagSize    = chacha20poly1305.Overhead  // 16
	noncePrefixSize = 4
)

// Errors returned by Send/Recv. All are non-fatal: callers log and continue.
var (
	ErrDecryptionFailure = errors.New("securesock: AEAD authentication failed")
	ErrFrameTooSmall     = errors.New("securesock: frame shorter than nonce+tag")
	ErrWouldBlock        = errors.New("securesock: no datagram available")
	ErrBufferOverflow    = errors.New("securesock: plaintext exceeds caller buffer")
)

// DeriveKey derives the 32-byte ChaCha20-Poly1305 key from passphrase using
// PBKDF2-HMAC-SHA256 with the fixed salt and iteration count.
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(Salt), PBKDF2Iterations, chacha20poly1305.KeySize, sha256.New)
}

// Socket wraps a UDP connection with authenticated encryption and an opt-in
// reliable delivery layer. A Socket may be used concurrently by one reader
// goroutine and any number of writer goroutines; writes are safe to call
// from multiple goroutines because the nonce counter is atomic.
type Socket struct {
	conn   *net.UDPConn
	aead   cipherAEAD
	prefix [noncePrefixSize]byte
	ctr    atomic.Uint64

	reliable *reliableState
}

// cipherAEAD is the subset of cipher.AEAD this package depends on; kept as
// an interface purely so tests can substitute a fake.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// Listen binds a UDP socket on addr (e.g. ":37549") and derives its AEAD
// key from passphrase.
func Listen(addr, passphrase string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("securesock: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("securesock: listen %q: %w", addr, err)
	}
	return newSocket(conn, passphrase)
}

// Dial creates a UDP "connection" to addr (UDP is connectionless, but this
// fixes the peer for subsequent plain Write/Read calls) and derives its AEAD
// key from passphrase.
func Dial(addr, passphrase string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("securesock: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("securesock: dial %q: %w", addr, err)
	}
	return newSocket(conn, passphrase)
}

func newSocket(conn *net.UDPConn, passphrase string) (*Socket, error) {
	// Large OS socket buffers keep the kernel from dropping bursts of audio
	// datagrams under momentary scheduling pressure.
	_ = conn.SetReadBuffer(4 << 20)
	_ = conn.SetWriteBuffer(4 << 20)

	aead, err := chacha20poly1305.New(DeriveKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("securesock: aead init: %w", err)
	}
	s := &Socket{conn: conn, aead: aead}
	if _, err := rand.Read(s.prefix[:]); err != nil {
		return nil, fmt.Errorf("securesock: nonce prefix: %w", err)
	}
	s.reliable = newReliableState(s)
	return s, nil
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying UDP socket.
func (s *Socket) Close() error { return s.conn.Close() }

func (s *Socket) nextNonce() [nonceSize]byte {
	var n [nonceSize]byte
	copy(n[:noncePrefixSize], s.prefix[:])
	binary.BigEndian.PutUint64(n[noncePrefixSize:], s.ctr.Add(1))
	return n
}

// seal encrypts plaintext and returns the full on-wire frame.
func (s *Socket) seal(plaintext []byte) []byte {
	nonce := s.nextNonce()
	out := make([]byte, 0, nonceSize+len(plaintext)+tagSize)
	out = append(out, nonce[:]...)
	return s.aead.Seal(out, nonce[:], plaintext, nil)
}

// open decrypts a received frame into plaintext.
func (s *Socket) open(frame []byte) ([]byte, error) {
	if len(frame) < nonceSize+tagSize {
		return nil, ErrFrameTooSmall
	}
	nonce := frame[:nonceSize]
	ciphertext := frame[nonceSize:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	if len(plain) > MaxPlaintext {
		return nil, ErrBufferOverflow
	}
	return plain, nil
}

// SendTo encrypts plaintext and sends it to addr.
func (s *Socket) SendTo(addr *net.UDPAddr, plaintext []byte) error {
	_, err := s.conn.WriteToUDP(s.seal(plaintext), addr)
	return err
}

// Send encrypts plaintext and sends it to the socket's dialed peer.
func (s *Socket) Send(plaintext []byte) error {
	_, err := s.conn.Write(s.seal(plaintext))
	return err
}

// RecvFrom performs one non-blocking receive, returning the decrypted
// plaintext and sender address. Returns ErrWouldBlock if no datagram is
// currently available.
func (s *Socket) RecvFrom(buf []byte) (n int, addr *net.UDPAddr, err error) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, err
	}
	raw := make([]byte, MaxPlaintext+nonceSize+tagSize+64)
	n2, from, rerr := s.conn.ReadFromUDP(raw)
	if rerr != nil {
		if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, rerr
	}
	plain, derr := s.open(raw[:n2])
	if derr != nil {
		return 0, from, derr
	}
	if len(plain) > len(buf) {
		return 0, from, ErrBufferOverflow
	}
	return copy(buf, plain), from, nil
}

// Tick drives the reliable sub-channel's retransmit timer. Call once per
// server tick or client network-thread iteration.
func (s *Socket) Tick() {
	s.reliable.tick(nil)
}

// TickTo drives retransmits for the reliable sub-channel when the socket
// has a fixed peer (client side): retransmitted frames go to that peer.
func (s *Socket) TickTo(addr *net.UDPAddr) {
	s.reliable.tick(addr)
}
