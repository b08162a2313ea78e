package registry

import (
	"sort"
	"strings"
	"time"
)

// ChannelMode is the persisted bit set of channel flags.
type ChannelMode int

const (
	ModePrivate ChannelMode = 1 << iota // p: hidden from LIST for non-members
)

var modeLetters = []struct {
	mode   ChannelMode
	letter byte
}{
	{ModePrivate, 'p'},
}

// ModeForLetter maps a mode character to its flag.
func ModeForLetter(c byte) (ChannelMode, bool) {
	for _, m := range modeLetters {
		if m.letter == c {
			return m.mode, true
		}
	}
	return 0, false
}

func (m ChannelMode) Has(flag ChannelMode) bool { return m&flag != 0 }

func (m ChannelMode) String() string {
	var b strings.Builder
	b.WriteByte('+')
	for _, l := range modeLetters {
		if m.Has(l.mode) {
			b.WriteByte(l.letter)
		}
	}
	return b.String()
}

// Membership binds a username to a channel.
type Membership struct {
	Username string
	Operator bool
	Joined   time.Time

	seq uint64
}

// Channel lives in the registry only while it has members.
type Channel struct {
	Name       string
	Topic      string
	TopicSetBy string
	TopicSetAt time.Time
	Created    time.Time
	Mode       ChannelMode

	members map[string]*Membership
	joins   uint64
}

func newChannel(name string, created time.Time) *Channel {
	return &Channel{
		Name:    name,
		Created: created,
		members: make(map[string]*Membership),
	}
}

// AddMember adds username if absent and reports whether it was added.
func (c *Channel) AddMember(username string, operator bool) bool {
	if _, ok := c.members[username]; ok {
		return false
	}
	c.joins++
	c.members[username] = &Membership{Username: username, Operator: operator, Joined: time.Now(), seq: c.joins}
	return true
}

func (c *Channel) RemoveMember(username string) bool {
	if _, ok := c.members[username]; !ok {
		return false
	}
	delete(c.members, username)
	return true
}

func (c *Channel) HasMember(username string) bool {
	_, ok := c.members[username]
	return ok
}

func (c *Channel) Member(username string) (*Membership, bool) {
	m, ok := c.members[username]
	return m, ok
}

func (c *Channel) Len() int { return len(c.members) }

// Members returns the memberships in join order.
func (c *Channel) Members() []*Membership {
	out := make([]*Membership, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// SetTopic replaces the topic; an empty topic clears it.
func (c *Channel) SetTopic(topic, setBy string, at time.Time) {
	c.Topic = topic
	c.TopicSetBy = setBy
	c.TopicSetAt = at
}
