package voiceserver

import "time"

// publishSnapshot builds a Snapshot from the current tick-thread state and
// publishes it via atomic pointer swap (§5: the only cross-goroutine touch
// point besides the audit sink).
func (s *Server) publishSnapshot(now time.Time) {
	snap := &Snapshot{
		At:             now,
		TickCount:      s.tickCount,
		DatagramsIn:    s.datagramsIn,
		DatagramsOut:   s.datagramsOut,
		DroppedIntake:  s.droppedIntake,
		DroppedJitter:  s.droppedJitter,
		ActiveRemotes:  len(s.remotes),
		ActiveConsoles: len(s.consoles),
	}
	for id, ch := range s.channels {
		snap.Channels = append(snap.Channels, ChannelSnapshot{
			ID:          id,
			Name:        ch.Name,
			MemberCount: ch.MemberCount(),
		})
	}
	s.snapshot.Store(snap)
}

// Snapshot is an immutable, point-in-time summary of the tick engine's
// counters. It is published once per second via an atomic pointer swap so
// the admin HTTP surface and console relay can read it without ever taking
// a lock the tick thread holds.
type Snapshot struct {
	At             time.Time
	TickCount      uint64
	DatagramsIn    uint64
	DatagramsOut   uint64
	DroppedIntake  uint64
	DroppedJitter  uint64
	ActiveRemotes  int
	ActiveConsoles int
	Channels       []ChannelSnapshot
}

// ChannelSnapshot is the per-channel portion of a Snapshot.
type ChannelSnapshot struct {
	ID          uint32
	Name        string
	MemberCount int
}
