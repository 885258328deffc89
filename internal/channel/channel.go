// Package channel implements the per-channel member roster and the
// personalized N-to-1 mixer invoked once per channel per tick.
package channel

import (
	"voudp/internal/mixer"
	"voudp/internal/remote"
)

// Channel is one voice channel: a name, its member roster, and the two
// per-tick maps the mixer needs (current input frame, carried DC-filter
// state) keyed by the same endpoint string used in the member roster.
//
// A Channel is only ever touched from the server's tick thread.
type Channel struct {
	ID   uint32
	Name string

	members      map[string]*remote.Remote
	inputFrames  map[string][]float32
	filterStates map[string]*mixer.DCState
}

// New constructs an empty channel.
func New(id uint32, name string) *Channel {
	return &Channel{
		ID:           id,
		Name:         name,
		members:      make(map[string]*remote.Remote),
		inputFrames:  make(map[string][]float32),
		filterStates: make(map[string]*mixer.DCState),
	}
}

// AddMember registers r as a channel member, seeding its input-frame and
// filter-state entries (the invariant that every member has both requires
// this to happen atomically with roster insertion).
func (c *Channel) AddMember(key string, r *remote.Remote, frameSamples int) {
	c.members[key] = r
	c.inputFrames[key] = make([]float32, frameSamples*2)
	c.filterStates[key] = &mixer.DCState{}
}

// RemoveMember deletes a member and both of its per-tick map entries.
func (c *Channel) RemoveMember(key string) {
	delete(c.members, key)
	delete(c.inputFrames, key)
	delete(c.filterStates, key)
}

// SetInputFrame overwrites a member's current-tick input frame in place.
// Called once per tick for every member, even when the contribution is
// silence (zero-filled), so the invariant "never a missing key" holds.
func (c *Channel) SetInputFrame(key string, frame []float32) {
	dst, ok := c.inputFrames[key]
	if !ok {
		return
	}
	copy(dst, frame)
}

// Members returns the channel's member map (endpoint key to remote) itself,
// not a copy. Callers must not mutate it concurrently; the tick thread is
// the only caller.
func (c *Channel) Members() map[string]*remote.Remote { return c.members }

// MemberCount reports the number of members currently in the channel.
func (c *Channel) MemberCount() int { return len(c.members) }

// Empty reports whether the channel has no members (used to decide whether
// a lazily-created, non-default channel can be garbage collected).
func (c *Channel) Empty() bool { return len(c.members) == 0 }
