// Package netclient implements the client's network thread: it owns the
// encrypted socket and the Opus codec pair, drains the audio engine's input
// ring into outgoing AUDIO packets, and dispatches incoming packets into the
// audio engine's output ring or an event channel (§4.6).
package netclient

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gopkg.in/hraban/opus.v2"

	"voudp/internal/clientaudio"
	"voudp/internal/protocol"
	"voudp/internal/securesock"
)

// EventKind classifies a decoded non-audio message handed to a Client's
// Events channel.
type EventKind int

const (
	EventChat EventKind = iota
	EventUnauthChatNotice
	EventFlowJoin
	EventFlowLeave
	EventFlowRenick
	EventCmdSuccess
	EventCmdError
	EventDM
	EventList
	EventCommands
)

// Event is one decoded non-audio message from the server.
type Event struct {
	Kind     EventKind
	Chat     protocol.ChatForward
	Mask     string
	OldMask  string
	NewMask  string
	Message  string
	List     protocol.ListReply
	Commands []protocol.CommandDescriptor
}

// eventBuf is the Events channel capacity; generous enough that a burst of
// flow/chat traffic never blocks the receive loop.
const eventBuf = 256

// listRequestInterval is how often the client re-requests the channel list
// and command table, and how the ping RTT is sampled (§4.6).
const listRequestInterval = time.Second

// Client is the client-side network thread. Construct with Dial, then run
// Run in its own goroutine.
type Client struct {
	sock   *securesock.Socket
	engine *clientaudio.Engine

	frameSamples int

	encoder *opus.Encoder
	decoder *opus.Decoder

	muted     atomic.Bool
	connected atomic.Bool
	pingMs    atomic.Int64

	Events chan Event

	stopCh chan struct{}
}

// Dial opens an encrypted connection to addr and constructs a Client bound
// to engine, sized for frameSamples per-channel samples per 20ms tick.
func Dial(addr, passphrase string, sampleRate, frameSamples int, engine *clientaudio.Engine) (*Client, error) {
	sock, err := securesock.Dial(addr, passphrase)
	if err != nil {
		return nil, fmt.Errorf("netclient: dial: %w", err)
	}
	enc, err := opus.NewEncoder(sampleRate, 2, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("netclient: new encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, 2)
	if err != nil {
		return nil, fmt.Errorf("netclient: new decoder: %w", err)
	}
	c := &Client{
		sock:         sock,
		engine:       engine,
		frameSamples: frameSamples,
		encoder:      enc,
		decoder:      dec,
		Events:       make(chan Event, eventBuf),
		stopCh:       make(chan struct{}),
	}
	c.connected.Store(true)
	return c, nil
}

// SetMuted controls whether captured frames are encoded and sent.
func (c *Client) SetMuted(muted bool) { c.muted.Store(muted) }

// Connected reports whether the client has not yet disconnected.
func (c *Client) Connected() bool { return c.connected.Load() }

// PingMillis returns the most recently measured round-trip time to the
// server, in milliseconds.
func (c *Client) PingMillis() int64 { return c.pingMs.Load() }

// Join sends a JOIN request for channelID.
func (c *Client) Join(channelID uint32) error {
	return c.sock.Send(protocol.EncodeJoin(channelID))
}

// SetMask sends a MASK request.
func (c *Client) SetMask(name string) error {
	return c.sock.Send(protocol.EncodeMask(name))
}

// SendChat sends a CHAT request.
func (c *Client) SendChat(message string) error {
	return c.sock.Send(protocol.EncodeChatRequest(message))
}

// SendCtrl sends a CTRL request.
func (c *Client) SendCtrl(code protocol.CtrlCode) error {
	return c.sock.Send(protocol.EncodeCtrl(code))
}

// SendCommand sends a CMD request reliably: the request is retransmitted
// until the server returns an ACK for it, independent of the CMD_SUCCESS or
// CMD_ERROR reply that follows.
func (c *Client) SendCommand(line string) error {
	_, err := c.sock.SendReliable(protocol.EncodeCmd(line))
	return err
}

// RegisterConsole authenticates as an administrative console.
func (c *Client) RegisterConsole(password string) error {
	return c.sock.Send(protocol.EncodeRegisterConsole(password))
}

// Disconnect sends EOF and marks the client disconnected. The caller is
// still responsible for stopping Run via its stop channel.
func (c *Client) Disconnect() error {
	c.connected.Store(false)
	return c.sock.Send(protocol.EncodeEOF())
}

// Run drives the network thread until stop is closed (§4.6, §5).
func (c *Client) Run(stop <-chan struct{}) {
	throttle := time.NewTicker(2 * time.Millisecond)
	defer throttle.Stop()

	nextListRequest := time.Now()
	var lastListSentAt time.Time

	buf := make([]byte, securesock.MaxPlaintext)
	opusBuf := make([]byte, 1275)

	for {
		select {
		case <-stop:
			return
		case <-throttle.C:
		}

		if now := time.Now(); !now.Before(nextListRequest) {
			lastListSentAt = now
			if err := c.sock.Send(protocol.EncodeListRequest()); err != nil {
				log.Printf("[netclient] list request failed: %v", err)
			}
			if err := c.sock.Send(protocol.EncodeSyncCommandsRequest()); err != nil {
				log.Printf("[netclient] sync commands request failed: %v", err)
			}
			nextListRequest = now.Add(listRequestInterval)
		}

		c.drainCaptureFrames(opusBuf)
		c.drainIncoming(buf, lastListSentAt)

		c.sock.Tick()
	}
}

func (c *Client) drainCaptureFrames(opusBuf []byte) {
	for {
		frame, ok := c.engine.DrainFrame()
		if !ok {
			return
		}
		if c.muted.Load() {
			continue
		}
		clientaudio.NoiseGate(frame)
		n, err := c.encoder.EncodeFloat32(frame, opusBuf)
		if err != nil {
			log.Printf("[netclient] opus encode: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		payload := make([]byte, n)
		copy(payload, opusBuf[:n])
		if err := c.sock.Send(protocol.EncodeAudio(payload)); err != nil {
			log.Printf("[netclient] audio send: %v", err)
		}
	}
}

func (c *Client) drainIncoming(buf []byte, lastListSentAt time.Time) {
	for {
		n, _, err := c.sock.RecvFrom(buf)
		if err == securesock.ErrWouldBlock {
			return
		}
		if err != nil {
			log.Printf("[netclient] recv error: %v", err)
			return
		}
		plain := make([]byte, n)
		copy(plain, buf[:n])
		c.handlePlaintext(plain, lastListSentAt)
	}
}

func (c *Client) handlePlaintext(plain []byte, lastListSentAt time.Time) {
	res := c.sock.UnwrapReliable(plain)
	switch res.Kind {
	case securesock.KindAck:
		return
	case securesock.KindMalformed:
		log.Printf("[netclient] malformed reliable frame")
		return
	case securesock.KindInnerNeedsAck:
		if seq, ok := securesock.ReliableSeq(plain); ok {
			if err := c.sock.Send(securesock.EncodeAck(seq)); err != nil {
				log.Printf("[netclient] ack send failed: %v", err)
			}
		}
		c.dispatch(res.Inner, lastListSentAt)
	default:
		c.dispatch(plain, lastListSentAt)
	}
}

func (c *Client) dispatch(payload []byte, lastListSentAt time.Time) {
	tag, rest, err := protocol.DecodeTag(payload)
	if err != nil {
		return
	}
	switch tag {
	case protocol.TagAudio:
		c.handleAudio(rest)
	case protocol.TagList:
		if !lastListSentAt.IsZero() {
			c.pingMs.Store(time.Since(lastListSentAt).Milliseconds())
		}
		reply, err := protocol.DecodeListReply(rest)
		if err != nil {
			log.Printf("[netclient] bad LIST reply: %v", err)
			return
		}
		c.emit(Event{Kind: EventList, List: reply})
	case protocol.TagSyncCommands:
		cmds, err := protocol.DecodeSyncCommandsReply(rest)
		if err != nil {
			log.Printf("[netclient] bad SYNC_COMMANDS reply: %v", err)
			return
		}
		c.emit(Event{Kind: EventCommands, Commands: cmds})
	case protocol.TagChat:
		fwd, err := protocol.DecodeChatForward(rest)
		if err != nil {
			log.Printf("[netclient] bad CHAT forward: %v", err)
			return
		}
		c.emit(Event{Kind: EventChat, Chat: fwd})
	case protocol.TagUnauthChatNotice:
		c.emit(Event{Kind: EventUnauthChatNotice})
	case protocol.TagFlowJoin:
		mask, err := protocol.DecodeFlowMask(rest)
		if err == nil {
			c.emit(Event{Kind: EventFlowJoin, Mask: mask})
		}
	case protocol.TagFlowLeave:
		mask, err := protocol.DecodeFlowMask(rest)
		if err == nil {
			c.emit(Event{Kind: EventFlowLeave, Mask: mask})
		}
	case protocol.TagFlowRenick:
		oldName, newName, err := protocol.DecodeFlowRenick(rest)
		if err == nil {
			c.emit(Event{Kind: EventFlowRenick, OldMask: oldName, NewMask: newName})
		}
	case protocol.TagCmdSuccess:
		msg, err := protocol.DecodeText(rest)
		if err == nil {
			c.emit(Event{Kind: EventCmdSuccess, Message: msg})
		}
	case protocol.TagCmdError:
		msg, err := protocol.DecodeText(rest)
		if err == nil {
			c.emit(Event{Kind: EventCmdError, Message: msg})
		}
	case protocol.TagDM:
		msg, err := protocol.DecodeText(rest)
		if err == nil {
			c.emit(Event{Kind: EventDM, Message: msg})
		}
	}
}

func (c *Client) handleAudio(opusFrame []byte) {
	pcm := make([]float32, c.frameSamples*2)
	n, err := c.decoder.DecodeFloat32(opusFrame, pcm)
	if err != nil {
		log.Printf("[netclient] opus decode: %v", err)
		return
	}
	if n != c.frameSamples {
		return
	}
	c.engine.QueuePlayback(pcm)
}

func (c *Client) emit(ev Event) {
	select {
	case c.Events <- ev:
	default:
		log.Printf("[netclient] event channel full, dropping %v", ev.Kind)
	}
}
