package voiceserver

import (
	"log"
	"time"

	"voudp/internal/channel"
	"voudp/internal/protocol"
	"voudp/internal/remote"
)

// tick runs one 20ms cycle: drain the intake queue into jitter buffers, pull
// one frame per member into its channel's input map, run every channel's
// mixer, then reap idle peers (§4.5a-d).
func (s *Server) tick() {
	s.tickCount++
	frameSamples := s.cfg.FrameSamples()

	s.drainIntake(frameSamples)
	s.popJitterFrames(frameSamples)

	cfg := s.mixConfig()
	for _, ch := range s.channels {
		channel.RunTick(ch, cfg, s.deliverMix, s.onMixError)
	}

	s.reapIdle()
}

func (s *Server) drainIntake(frameSamples int) {
	for {
		select {
		case item := <-s.intake:
			r, found := s.remotes[item.key]
			if !found {
				continue
			}
			pushed, err := r.DecodeAndPush(item.opusFrame, frameSamples)
			if err != nil {
				log.Printf("[voiceserver] decode failed for %s: %v", item.addr, err)
				continue
			}
			if !pushed {
				s.droppedJitter++
			}
		default:
			return
		}
	}
}

func (s *Server) popJitterFrames(frameSamples int) {
	for _, ch := range s.channels {
		for key, r := range ch.Members() {
			ch.SetInputFrame(key, r.PopFrame(frameSamples))
		}
	}
}

func (s *Server) deliverMix(r *remote.Remote, opusPayload []byte) error {
	return s.send(r.Addr, protocol.EncodeAudio(opusPayload))
}

func (s *Server) onMixError(key string, err error) {
	log.Printf("[voiceserver] mix error for %s: %v", key, err)
}

// reapIdle removes any remote or console that has been silent for longer
// than cfg.TimeoutSecs, broadcasting FLOW_LEAVE for masked remotes and
// recording an audit event (§4.5d).
func (s *Server) reapIdle() {
	now := time.Now()
	timeout := time.Duration(s.cfg.TimeoutSecs) * time.Second

	for key, r := range s.remotes {
		if r.IdleFor(now) < timeout {
			continue
		}
		s.removeFromChannel(key, r)
		delete(s.remotes, key)
		s.audit("idle_reap", key, "timed out")
	}

	for key, c := range s.consoles {
		if now.Sub(c.lastActivity) < timeout {
			continue
		}
		delete(s.consoles, key)
		s.audit("console_reap", key, "timed out")
	}
}
