package registry

import (
	"sort"
	"time"

	"pkdindustries/ircd/internal/irc"
)

// Outbox receives the wire lines addressed to a user. It is the
// connection's outbound queue; the user holds it without owning it.
type Outbox interface {
	Push(line string) bool
	CloseWhenDrained()
}

// User is a registered or registering client.
type User struct {
	Nick     string
	Username string
	Realname string
	Hostname string
	Away     string
	Operator bool
	Since    time.Time

	channels   map[string]string
	registered bool
	quitting   bool
	quitReason string
	out        Outbox
}

func NewUser(host string, out Outbox) *User {
	return &User{
		Hostname: host,
		Since:    time.Now(),
		channels: make(map[string]string),
		out:      out,
	}
}

// Registered is monotonic: once set by Registry.AddUser it never clears.
func (u *User) Registered() bool { return u.registered }

// Send enqueues a terminated wire line. Lines sent after Quit are dropped.
func (u *User) Send(line string) {
	if u.out == nil || u.quitting {
		return
	}
	u.out.Push(line)
}

// Quit marks the user as leaving. Output already queued is still written,
// after which the connection is closed.
func (u *User) Quit(reason string) {
	if u.quitting {
		return
	}
	u.quitting = true
	u.quitReason = reason
	if u.out != nil {
		u.out.CloseWhenDrained()
	}
}

func (u *User) Quitting() (bool, string) { return u.quitting, u.quitReason }

// Prefix returns the nick!user@host origin used on relayed messages.
func (u *User) Prefix() string {
	return u.Name() + "!" + u.Username + "@" + u.Hostname
}

// Name returns the nick, or "*" before one is chosen.
func (u *User) Name() string {
	if u.Nick == "" {
		return "*"
	}
	return u.Nick
}

func (u *User) InChannel(name string) bool {
	_, ok := u.channels[irc.Fold(name)]
	return ok
}

func (u *User) ChannelCount() int { return len(u.channels) }

// Channels returns the names of joined channels, sorted.
func (u *User) Channels() []string {
	names := make([]string, 0, len(u.channels))
	for _, name := range u.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
