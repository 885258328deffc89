package voiceserver

import (
	"log"
	"log/slog"
	"net"
	"time"

	"voudp/internal/channel"
	"voudp/internal/commands"
	"voudp/internal/protocol"
	"voudp/internal/remote"
)

// dispatch routes one decrypted application payload by its leading tag
// (§4.5). Unknown endpoints are ignored for every tag except JOIN and
// REGISTER_CONSOLE (§4.5, Dispatch).
func (s *Server) dispatch(addr *net.UDPAddr, payload []byte) {
	tag, rest, err := protocol.DecodeTag(payload)
	if err != nil {
		log.Printf("[voiceserver] %v from %s", err, addr)
		return
	}

	key := addr.String()

	if c, isConsole := s.consoles[key]; isConsole {
		s.dispatchConsole(c, tag, rest)
		return
	}

	r, known := s.remotes[key]

	switch tag {
	case protocol.TagJoin:
		s.handleJoin(addr, key, r, rest)
		return
	case protocol.TagRegisterConsole:
		s.handleRegisterConsole(addr, key, rest)
		return
	}

	if !known {
		return
	}
	r.Touch()

	switch tag {
	case protocol.TagAudio:
		s.handleAudio(addr, key, rest)
	case protocol.TagEOF:
		s.handleLeave(key, r)
	case protocol.TagMask:
		s.handleMask(addr, key, r, rest)
	case protocol.TagCtrl:
		s.handleCtrl(r, rest)
	case protocol.TagChat:
		s.handleChat(addr, r, rest)
	case protocol.TagList:
		s.handleListRequest(addr, r)
	case protocol.TagSyncCommands:
		s.handleSyncCommandsRequest(addr)
	case protocol.TagCmd:
		s.handleCmd(addr, r, rest, false)
	default:
		log.Printf("[voiceserver] unhandled tag 0x%02x from %s", byte(tag), addr)
	}
}

func (s *Server) handleJoin(addr *net.UDPAddr, key string, r *remote.Remote, rest []byte) {
	channelID, err := protocol.DecodeJoin(rest)
	if err != nil {
		log.Printf("[voiceserver] bad JOIN from %s: %v", addr, err)
		return
	}

	if r == nil {
		if len(s.remotes) >= s.cfg.MaxUsers {
			// RemoteLimit: reject with no action; client times out.
			return
		}
		nr, err := remote.New(addr, int(s.cfg.SampleRate))
		if err != nil {
			log.Printf("[voiceserver] failed to construct remote for %s: %v", addr, err)
			return
		}
		r = nr
		s.remotes[key] = r
	} else {
		s.removeFromChannel(key, r)
	}

	ch := s.channelOrCreate(channelID)
	ch.AddMember(key, r, s.cfg.FrameSamples())
	r.ChannelID = channelID
	if r.State == remote.StateNew {
		r.State = remote.StateUnmasked
	}
	r.Touch()
}

func (s *Server) channelOrCreate(id uint32) *channel.Channel {
	ch, ok := s.channels[id]
	if !ok {
		ch = newChannel(id)
		s.channels[id] = ch
		s.audit("channel_create", "", chanName(id))
	}
	return ch
}

func (s *Server) handleRegisterConsole(addr *net.UDPAddr, key string, rest []byte) {
	password := protocol.DecodeRegisterConsole(rest)
	if password != s.cfg.ConsolePassword || s.cfg.ConsolePassword == "" {
		// BadPassword: silent drop.
		return
	}
	s.consoles[key] = &console{addr: addr, lastActivity: time.Now(), admin: true}
	s.slog.Info("console registered", slog.String("addr", key))
}

func (s *Server) handleAudio(addr *net.UDPAddr, key string, opusFrame []byte) {
	frame := make([]byte, len(opusFrame))
	copy(frame, opusFrame)
	select {
	case s.intake <- intakeItem{key: key, addr: addr, opusFrame: frame}:
	default:
		s.droppedIntake++
		log.Printf("[voiceserver] intake queue full, dropping audio from %s", addr)
	}
}

func (s *Server) handleLeave(key string, r *remote.Remote) {
	s.removeFromChannel(key, r)
	delete(s.remotes, key)
}

func (s *Server) handleMask(addr *net.UDPAddr, key string, r *remote.Remote, rest []byte) {
	name, err := protocol.DecodeMask(rest)
	if err != nil {
		log.Printf("[voiceserver] bad MASK from %s: %v", addr, err)
		return
	}
	old := r.Mask
	r.Mask = name

	ch, ok := s.channels[r.ChannelID]
	if !ok {
		return
	}

	if r.State != remote.StateMasked {
		r.State = remote.StateMasked
		s.broadcastExcept(ch, key, protocol.EncodeFlowJoin(name), true)
		return
	}

	s.broadcastAll(ch, protocol.EncodeFlowRenick(old, name), true)
}

func (s *Server) handleCtrl(r *remote.Remote, rest []byte) {
	code, err := protocol.DecodeCtrl(rest)
	if err != nil {
		log.Printf("[voiceserver] bad CTRL: %v", err)
		return
	}
	switch code {
	case protocol.CtrlDeafen:
		r.Deaf = true
	case protocol.CtrlUndeafen:
		r.Deaf = false
	case protocol.CtrlMute:
		r.Mute = true
	case protocol.CtrlUnmute:
		r.Mute = false
	}
}

func (s *Server) handleChat(addr *net.UDPAddr, r *remote.Remote, rest []byte) {
	if r.State != remote.StateMasked {
		if err := s.send(addr, protocol.EncodeUnauthChatNotice()); err != nil {
			log.Printf("[voiceserver] send unauth chat notice: %v", err)
		}
		return
	}
	msg, err := protocol.DecodeChatRequest(rest)
	if err != nil {
		log.Printf("[voiceserver] bad CHAT from %s: %v", addr, err)
		return
	}
	ch, ok := s.channels[r.ChannelID]
	if !ok {
		return
	}
	for memberKey, member := range ch.Members() {
		fwd := protocol.ChatForward{SenderMask: r.Mask, IsSelf: memberKey == addr.String(), Message: msg}
		if err := s.sendReliable(member.Addr, protocol.EncodeChatForward(fwd)); err != nil {
			log.Printf("[voiceserver] chat forward to %s failed: %v", member.Addr, err)
		}
	}
}

func (s *Server) handleListRequest(addr *net.UDPAddr, self *remote.Remote) {
	reply := protocol.ListReply{CurrentChannelID: self.ChannelID}
	for id, ch := range s.channels {
		entry := protocol.ListChannel{Name: ch.Name, ChannelID: id}
		for _, m := range ch.Members() {
			if m.State != remote.StateMasked {
				entry.UnmaskedCount++
				continue
			}
			entry.MaskedCount++
			entry.Users = append(entry.Users, protocol.ListUser{Mask: m.Mask, Mute: m.Mute, Deaf: m.Deaf})
		}
		reply.Channels = append(reply.Channels, entry)
	}
	if err := s.send(addr, protocol.EncodeListReply(reply)); err != nil {
		log.Printf("[voiceserver] list reply send failed: %v", err)
	}
}

func (s *Server) handleSyncCommandsRequest(addr *net.UDPAddr) {
	descs := make([]protocol.CommandDescriptor, 0)
	for _, cmd := range s.registry.All() {
		descs = append(descs, protocol.CommandDescriptor{
			Name:        cmd.Name,
			Description: cmd.Description,
			Usage:       cmd.Usage,
			Category:    protocol.Category(cmd.Category),
			RequireAuth: cmd.RequiresAuth,
			AdminOnly:   cmd.AdminOnly,
			Aliases:     cmd.Aliases,
		})
	}
	if err := s.send(addr, protocol.EncodeSyncCommandsReply(descs)); err != nil {
		log.Printf("[voiceserver] sync commands reply send failed: %v", err)
	}
}

func (s *Server) handleCmd(addr *net.UDPAddr, r *remote.Remote, rest []byte, isAdmin bool) {
	line, err := protocol.DecodeText(rest)
	if err != nil {
		log.Printf("[voiceserver] bad CMD: %v", err)
		return
	}
	masked := r == nil || r.State == remote.StateMasked
	cmd, args, res := s.registry.Resolve(line, masked, isAdmin)
	switch res {
	case commands.ResolutionMalformed, commands.ResolutionUnknown:
		s.replyCmdError(addr, "unknown command")
		return
	case commands.ResolutionNeedsAuth:
		s.replyCmdError(addr, "set a mask before using this command")
		return
	case commands.ResolutionNeedsAdmin:
		s.replyCmdError(addr, "admin privileges required")
		return
	}

	outcome := s.execCommand(cmd, args, addr, r, isAdmin)
	switch outcome.kind {
	case outcomeSuccess:
		s.replyCmdSuccess(addr, outcome.message)
	case outcomeError:
		s.replyCmdError(addr, outcome.message)
	}
	if isAdmin {
		s.audit("console_command", addr.String(), line)
	}
}

func (s *Server) replyCmdSuccess(addr *net.UDPAddr, msg string) {
	if err := s.sendReliable(addr, protocol.EncodeCmdSuccess(msg)); err != nil {
		log.Printf("[voiceserver] cmd success send failed: %v", err)
	}
}

func (s *Server) replyCmdError(addr *net.UDPAddr, msg string) {
	if err := s.sendReliable(addr, protocol.EncodeCmdError(msg)); err != nil {
		log.Printf("[voiceserver] cmd error send failed: %v", err)
	}
}

// dispatchConsole handles the separate dispatch table for registered
// console endpoints (§4.5): only CMD is accepted.
func (s *Server) dispatchConsole(c *console, tag protocol.Tag, rest []byte) {
	c.lastActivity = time.Now()
	if tag != protocol.TagCmd {
		return
	}
	s.handleCmd(c.addr, nil, rest, true)
}

func (s *Server) removeFromChannel(key string, r *remote.Remote) {
	ch, ok := s.channels[r.ChannelID]
	if !ok {
		return
	}
	ch.RemoveMember(key)
	if r.State == remote.StateMasked {
		s.broadcastAll(ch, protocol.EncodeFlowLeave(r.Mask), true)
	}
}

func (s *Server) broadcastExcept(ch *channel.Channel, exceptKey string, payload []byte, reliable bool) {
	for key, m := range ch.Members() {
		if key == exceptKey {
			continue
		}
		s.sendTo(m.Addr, payload, reliable)
	}
}

func (s *Server) broadcastAll(ch *channel.Channel, payload []byte, reliable bool) {
	for _, m := range ch.Members() {
		s.sendTo(m.Addr, payload, reliable)
	}
}

func (s *Server) sendTo(addr *net.UDPAddr, payload []byte, reliable bool) {
	var err error
	if reliable {
		err = s.sendReliable(addr, payload)
	} else {
		err = s.send(addr, payload)
	}
	if err != nil {
		log.Printf("[voiceserver] broadcast send to %s failed: %v", addr, err)
	}
}
