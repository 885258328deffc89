// Package voiceserver implements the server tick engine: the ingest loop,
// tick scheduler, dispatcher, and cleanup pass described across §3-§5 of the
// specification. The server owns all remote and channel state exclusively
// from its own goroutine; no other goroutine may touch it (§5).
package voiceserver

import (
	"log"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"voudp/internal/channel"
	"voudp/internal/commands"
	"voudp/internal/remote"
	"voudp/internal/securesock"
)

// DefaultChannelID is the channel created at startup that cannot be deleted.
const DefaultChannelID = 1

// AuditFunc records a best-effort audit event. Implementations must not
// block the tick thread; the sqlite-backed implementation in internal/audit
// enqueues onto a small buffered channel and drops on overflow.
type AuditFunc func(kind, actor, detail string)

// console is an administrative peer authenticated by shared password. The
// capability set is a single admin flag today; it is a field rather than an
// implicit property so a future multi-tier console password scheme has
// somewhere to put finer-grained capabilities.
type console struct {
	addr         *net.UDPAddr
	lastActivity time.Time
	admin        bool
}

// intakeItem is one entry in the bounded audio intake queue: an endpoint and
// its still-encoded Opus bytes, decoded later in the tick (§4.5a).
type intakeItem struct {
	key       string
	addr      *net.UDPAddr
	opusFrame []byte
}

// Server is the single-threaded voice tick engine.
type Server struct {
	cfg  Config
	sock *securesock.Socket

	remotes  map[string]*remote.Remote
	channels map[uint32]*channel.Channel
	consoles map[string]*console

	intake    chan intakeItem
	nextTick  time.Time
	tickCount uint64

	datagramsIn, datagramsOut uint64
	droppedIntake, droppedJitter uint64

	registry *commands.Registry
	audit    AuditFunc

	snapshot atomic.Pointer[Snapshot]

	slog *slog.Logger
}

// New constructs a Server bound to cfg.BindAddr. It does not start the tick
// loop; call Run for that.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	sock, err := securesock.Listen(cfg.BindAddr, cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		sock:     sock,
		remotes:  make(map[string]*remote.Remote),
		channels: make(map[uint32]*channel.Channel),
		consoles: make(map[string]*console),
		intake:   make(chan intakeItem, cfg.MaxUsers),
		nextTick: time.Now(),
		registry: commands.NewRegistry(),
		audit:    func(string, string, string) {},
		slog:     logger,
	}
	s.channels[DefaultChannelID] = channel.New(DefaultChannelID, "general")
	return s, nil
}

// SetAudit installs an audit sink. Passing nil restores the no-op default.
func (s *Server) SetAudit(fn AuditFunc) {
	if fn == nil {
		fn = func(string, string, string) {}
	}
	s.audit = fn
}

// Addr returns the server's bound UDP address.
func (s *Server) Addr() net.Addr { return s.sock.LocalAddr() }

// Snapshot returns the most recently published stats snapshot, or a zero
// Snapshot before the first publish (Run publishes once per second, the
// first time about one second after it starts).
func (s *Server) Snapshot() Snapshot {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// Run drives the main loop until ctx-like stop channel is closed. It never
// returns on error: every failure is logged and the loop continues (§7).
func (s *Server) Run(stop <-chan struct{}) {
	tickPeriod := time.Duration(s.cfg.TickPeriodMillis()) * time.Millisecond
	throttle := time.Duration(s.cfg.ThrottleMillis) * time.Millisecond
	lastSnapshot := time.Now()

	buf := make([]byte, securesock.MaxPlaintext)
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.drainDatagrams(buf)

		if time.Now().After(s.nextTick) {
			s.tick()
			s.nextTick = s.nextTick.Add(tickPeriod)
		}

		s.sock.Tick()

		if now := time.Now(); now.Sub(lastSnapshot) >= time.Second {
			s.publishSnapshot(now)
			lastSnapshot = now
		}

		time.Sleep(throttle)
	}
}

func (s *Server) drainDatagrams(buf []byte) {
	for {
		n, addr, err := s.sock.RecvFrom(buf)
		if err == securesock.ErrWouldBlock {
			return
		}
		if err != nil {
			log.Printf("[voiceserver] recv error: %v", err)
			continue
		}
		s.datagramsIn++
		plain := make([]byte, n)
		copy(plain, buf[:n])
		s.handleFrame(addr, plain)
	}
}

func (s *Server) handleFrame(addr *net.UDPAddr, plain []byte) {
	res := s.sock.UnwrapReliable(plain)
	switch res.Kind {
	case securesock.KindAck:
		return
	case securesock.KindMalformed:
		log.Printf("[voiceserver] malformed reliable frame from %s", addr)
		return
	case securesock.KindInnerNeedsAck:
		if seq, ok := securesock.ReliableSeq(plain); ok {
			if err := s.sock.SendTo(addr, securesock.EncodeAck(seq)); err != nil {
				log.Printf("[voiceserver] ack send failed: %v", err)
			}
		}
		s.dispatch(addr, res.Inner)
	default: // KindPlain
		s.dispatch(addr, plain)
	}
}

func (s *Server) send(addr *net.UDPAddr, payload []byte) error {
	s.datagramsOut++
	return s.sock.SendTo(addr, payload)
}

func (s *Server) sendReliable(addr *net.UDPAddr, payload []byte) error {
	s.datagramsOut++
	_, err := s.sock.SendReliableTo(addr, payload)
	return err
}

func (s *Server) mixConfig() channel.Config {
	return channel.Config{
		Normalize:         s.cfg.ShouldNormalize,
		Compress:          s.cfg.ShouldCompress,
		CompressThreshold: s.cfg.CompressThreshold,
		CompressRatio:     s.cfg.CompressRatio,
		Clip:              s.cfg.Clipping,
		FrameSamples:      s.cfg.FrameSamples(),
		MaxOpusBytes:      MaxOpusBytes,
	}
}
