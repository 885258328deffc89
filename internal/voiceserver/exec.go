package voiceserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"voudp/internal/commands"
	"voudp/internal/protocol"
	"voudp/internal/remote"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeError
)

type cmdOutcome struct {
	kind    outcomeKind
	message string
}

func cmdOK(msg string) cmdOutcome   { return cmdOutcome{kind: outcomeSuccess, message: msg} }
func fail(msg string) cmdOutcome    { return cmdOutcome{kind: outcomeError, message: msg} }

// execCommand runs the server-side handler for a resolved command. r is nil
// when the caller is a console (admin context, no voice identity).
func (s *Server) execCommand(cmd *commands.Command, args []string, addr *net.UDPAddr, r *remote.Remote, isAdmin bool) cmdOutcome {
	switch cmd.Name {
	case "/nick":
		return s.cmdNick(addr, r, args)
	case "/whoami":
		return s.cmdWhoami(r)
	case "/join":
		return s.cmdJoinCmd(addr, r, args)
	case "/list":
		return s.cmdList(r)
	case "/mute":
		return s.cmdSetMute(r, true)
	case "/unmute":
		return s.cmdSetMute(r, false)
	case "/deafen":
		return s.cmdSetDeaf(r, true)
	case "/undeafen":
		return s.cmdSetDeaf(r, false)
	case "/me":
		return s.cmdMe(r, args)
	case "/whisper":
		return s.cmdWhisper(r, args)
	case "/help":
		return s.cmdHelp(isAdmin, args)
	case "/ping":
		return cmdOK("pong")
	case "/serverinfo":
		return s.cmdServerInfo()
	case "/kick":
		return s.cmdKick(args)
	case "/channels":
		return s.cmdChannelsAdmin(args)
	default:
		return fail("not implemented")
	}
}

func (s *Server) cmdNick(addr *net.UDPAddr, r *remote.Remote, args []string) cmdOutcome {
	if r == nil {
		return fail("consoles have no mask")
	}
	if len(args) != 1 {
		return fail("usage: /nick <name>")
	}
	s.handleMask(addr, addr.String(), r, []byte(args[0]))
	return cmdOK("mask set to " + args[0])
}

func (s *Server) cmdWhoami(r *remote.Remote) cmdOutcome {
	if r == nil {
		return cmdOK("console")
	}
	return cmdOK(fmt.Sprintf("mask=%q channel=%d state=%s", r.Mask, r.ChannelID, r.State))
}

func (s *Server) cmdJoinCmd(addr *net.UDPAddr, r *remote.Remote, args []string) cmdOutcome {
	if r == nil {
		return fail("consoles cannot join channels")
	}
	if len(args) != 1 {
		return fail("usage: /join <channel_id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fail("invalid channel id")
	}
	s.handleJoin(addr, addr.String(), r, protocol.EncodeJoin(uint32(id))[1:])
	return cmdOK(fmt.Sprintf("joined channel %d", id))
}

func (s *Server) cmdList(r *remote.Remote) cmdOutcome {
	var b strings.Builder
	for id, ch := range s.channels {
		fmt.Fprintf(&b, "#%d %s (%d members)\n", id, ch.Name, ch.MemberCount())
	}
	return cmdOK(strings.TrimSuffix(b.String(), "\n"))
}

func (s *Server) cmdSetMute(r *remote.Remote, muted bool) cmdOutcome {
	if r == nil {
		return fail("consoles have no microphone")
	}
	r.Mute = muted
	if muted {
		return cmdOK("muted")
	}
	return cmdOK("unmuted")
}

func (s *Server) cmdSetDeaf(r *remote.Remote, deaf bool) cmdOutcome {
	if r == nil {
		return fail("consoles have no speakers")
	}
	r.Deaf = deaf
	if deaf {
		return cmdOK("deafened")
	}
	return cmdOK("undeafened")
}

func (s *Server) cmdMe(r *remote.Remote, args []string) cmdOutcome {
	if r == nil {
		return fail("consoles cannot act in chat")
	}
	ch, found := s.channels[r.ChannelID]
	if !found {
		return fail("not in a channel")
	}
	action := "* " + r.Mask + " " + strings.Join(args, " ")
	for _, m := range ch.Members() {
		fwd := protocol.ChatForward{SenderMask: r.Mask, IsSelf: m.Addr.String() == r.Addr.String(), Message: action}
		s.sendReliable(m.Addr, protocol.EncodeChatForward(fwd))
	}
	return cmdOK("sent")
}

func (s *Server) cmdWhisper(r *remote.Remote, args []string) cmdOutcome {
	if r == nil {
		return fail("consoles cannot whisper")
	}
	if len(args) < 2 {
		return fail("usage: /whisper <user> <message>")
	}
	target := args[0]
	msg := strings.Join(args[1:], " ")
	dest, found := s.findByMask(target)
	if !found {
		return fail("no such user: " + target)
	}
	if err := s.sendReliable(dest.Addr, protocol.EncodeDM(fmt.Sprintf("%s: %s", r.Mask, msg))); err != nil {
		return fail("delivery failed")
	}
	return cmdOK("whispered to " + target)
}

func (s *Server) cmdHelp(isAdmin bool, args []string) cmdOutcome {
	if len(args) == 1 {
		cmd, found := s.registry.Lookup(args[0])
		if !found || (cmd.AdminOnly && !isAdmin) {
			return fail("unknown command: " + args[0])
		}
		return cmdOK(cmd.Usage + " - " + cmd.Description)
	}
	var names []string
	for _, c := range s.registry.ForUser(isAdmin) {
		names = append(names, c.Name)
	}
	return cmdOK(strings.Join(names, " "))
}

func (s *Server) cmdServerInfo() cmdOutcome {
	snap := s.Snapshot()
	return cmdOK(fmt.Sprintf("remotes=%d channels=%d ticks=%d", snap.ActiveRemotes, len(snap.Channels), snap.TickCount))
}

func (s *Server) cmdKick(args []string) cmdOutcome {
	if len(args) < 1 {
		return fail("usage: /kick <mask> [reason]")
	}
	target, found := s.findByMask(args[0])
	if !found {
		return fail("no such user: " + args[0])
	}
	key := target.Addr.String()
	s.removeFromChannel(key, target)
	delete(s.remotes, key)
	s.audit("kick", args[0], strings.Join(args[1:], " "))
	return cmdOK("kicked " + args[0])
}

func (s *Server) cmdChannelsAdmin(args []string) cmdOutcome {
	if len(args) < 1 {
		return fail("usage: /channels create|rename|delete <args>")
	}
	switch args[0] {
	case "create":
		if len(args) != 3 {
			return fail("usage: /channels create <id> <name>")
		}
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fail("invalid channel id")
		}
		if _, exists := s.channels[uint32(id)]; exists {
			return fail("channel already exists")
		}
		ch := s.channelOrCreate(uint32(id))
		ch.Name = args[2]
		return cmdOK(fmt.Sprintf("created channel %d (%s)", id, args[2]))
	case "rename":
		if len(args) != 3 {
			return fail("usage: /channels rename <id> <name>")
		}
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fail("invalid channel id")
		}
		ch, found := s.channels[uint32(id)]
		if !found {
			return fail("no such channel")
		}
		ch.Name = args[2]
		s.audit("channel_rename", "", chanName(uint32(id)))
		return cmdOK(fmt.Sprintf("renamed channel %d to %s", id, args[2]))
	case "delete":
		if len(args) != 2 {
			return fail("usage: /channels delete <id>")
		}
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fail("invalid channel id")
		}
		if uint32(id) == DefaultChannelID {
			return fail("cannot delete the default channel")
		}
		ch, found := s.channels[uint32(id)]
		if !found {
			return fail("no such channel")
		}
		if !ch.Empty() {
			return fail("channel is not empty")
		}
		delete(s.channels, uint32(id))
		s.audit("channel_delete", "", chanName(uint32(id)))
		return cmdOK(fmt.Sprintf("deleted channel %d", id))
	default:
		return fail("unknown subcommand: " + args[0])
	}
}

func (s *Server) findByMask(mask string) (*remote.Remote, bool) {
	for _, r := range s.remotes {
		if r.Mask == mask {
			return r, true
		}
	}
	return nil, false
}

func chanName(id uint32) string {
	return fmt.Sprintf("channel-%d", id)
}
