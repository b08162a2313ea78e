// Package registry holds the server's users, nicks and channels. It is
// owned by the server's event loop and is not safe for concurrent use.
package registry

import (
	"errors"
	"slices"
	"sort"
	"time"

	"pkdindustries/ircd/internal/irc"
)

var (
	ErrIncomplete    = errors.New("registration requires nick, username and realname")
	ErrUsernameInUse = errors.New("username is already in use")
	ErrNickInUse     = errors.New("nickname is already in use")
)

// Registry keys nicks and channel names by their RFC 1459 folded form and
// users by their verbatim username. Memberships store usernames only.
type Registry struct {
	users    map[string]*User
	nicks    map[string]string
	history  map[string][]string
	owners   map[string]string
	channels map[string]*Channel
}

func New() *Registry {
	return &Registry{
		users:    make(map[string]*User),
		nicks:    make(map[string]string),
		history:  make(map[string][]string),
		owners:   make(map[string]string),
		channels: make(map[string]*Channel),
	}
}

// LoadHistory seeds the nick history, typically from the nicks file.
func (r *Registry) LoadHistory(history map[string][]string) {
	for username, nicks := range history {
		for _, nick := range nicks {
			r.RecordHistoricalNick(username, nick)
		}
	}
}

// History returns a copy of the username to nicks history.
func (r *Registry) History() map[string][]string {
	out := make(map[string][]string, len(r.history))
	for username, nicks := range r.history {
		out[username] = slices.Clone(nicks)
	}
	return out
}

// NickHistory returns every nick username has used, oldest first.
func (r *Registry) NickHistory(username string) []string {
	return slices.Clone(r.history[username])
}

// HistoricalOwner returns the username that last recorded nick.
func (r *Registry) HistoricalOwner(nick string) (string, bool) {
	username, ok := r.owners[irc.Fold(nick)]
	return username, ok
}

// RecordHistoricalNick appends nick to the username's history. Entries are
// never removed; a nick already in the list is not repeated.
func (r *Registry) RecordHistoricalNick(username, nick string) {
	if username == "" || nick == "" {
		return
	}
	r.owners[irc.Fold(nick)] = username
	for _, n := range r.history[username] {
		if n == nick {
			return
		}
	}
	r.history[username] = append(r.history[username], nick)
}

func (r *Registry) FindUserByUsername(username string) *User {
	return r.users[username]
}

func (r *Registry) FindUserByNick(nick string) *User {
	username, ok := r.nicks[irc.Fold(nick)]
	if !ok {
		return nil
	}
	return r.users[username]
}

// NickIsAvailable reports whether u may take nick: no other online user
// holds it, and it is not in the history of a different username. The
// history check needs u's username and is skipped until one is known.
func (r *Registry) NickIsAvailable(nick string, u *User) bool {
	key := irc.Fold(nick)
	if owner, ok := r.nicks[key]; ok {
		return u.registered && owner == u.Username && r.users[owner] == u
	}
	if u.Username == "" {
		return true
	}
	if owner, ok := r.owners[key]; ok && owner != u.Username {
		return false
	}
	return true
}

// BindNick sets u's nick. For registered users the online nick map is
// updated too, replacing the previous mapping.
func (r *Registry) BindNick(u *User, nick string) {
	if u.registered {
		if old := irc.Fold(u.Nick); r.nicks[old] == u.Username {
			delete(r.nicks, old)
		}
		r.nicks[irc.Fold(nick)] = u.Username
	}
	u.Nick = nick
}

// AddUser completes registration of u. Nick availability is checked again
// here since it may have been claimed after u's NICK was accepted.
func (r *Registry) AddUser(u *User) error {
	if u.registered {
		return nil
	}
	if u.Nick == "" || u.Username == "" || u.Realname == "" {
		return ErrIncomplete
	}
	if other, ok := r.users[u.Username]; ok && other != u {
		return ErrUsernameInUse
	}
	if !r.NickIsAvailable(u.Nick, u) {
		return ErrNickInUse
	}

	r.users[u.Username] = u
	r.nicks[irc.Fold(u.Nick)] = u.Username
	u.registered = true
	r.RecordHistoricalNick(u.Username, u.Nick)
	return nil
}

// RemoveUser drops u from every channel and map. Channels left empty are
// removed and returned.
func (r *Registry) RemoveUser(u *User) []*Channel {
	var emptied []*Channel
	for _, name := range u.Channels() {
		ch := r.FindChannel(name)
		if ch == nil {
			continue
		}
		r.Part(ch, u)
		if removed, ok := r.RemoveChannelIfEmpty(ch.Name); ok {
			emptied = append(emptied, removed)
		}
	}

	if !u.registered {
		return emptied
	}
	if key := irc.Fold(u.Nick); r.nicks[key] == u.Username {
		delete(r.nicks, key)
	}
	if r.users[u.Username] == u {
		delete(r.users, u.Username)
	}
	return emptied
}

// Users returns registered users sorted by nick.
func (r *Registry) Users() []*User {
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}

func (r *Registry) UserCount() int { return len(r.users) }

func (r *Registry) OperatorCount() int {
	n := 0
	for _, u := range r.users {
		if u.Operator {
			n++
		}
	}
	return n
}

func (r *Registry) FindChannel(name string) *Channel {
	return r.channels[irc.Fold(name)]
}

// CreateChannelIfAbsent returns the named channel, creating it if needed.
// The second result is true when the channel was created.
func (r *Registry) CreateChannelIfAbsent(name string, now time.Time) (*Channel, bool) {
	key := irc.Fold(name)
	if ch, ok := r.channels[key]; ok {
		return ch, false
	}
	ch := newChannel(name, now)
	r.channels[key] = ch
	return ch, true
}

// RemoveChannelIfEmpty deletes the channel when it has no members and
// returns it.
func (r *Registry) RemoveChannelIfEmpty(name string) (*Channel, bool) {
	key := irc.Fold(name)
	ch, ok := r.channels[key]
	if !ok || ch.Len() > 0 {
		return nil, false
	}
	delete(r.channels, key)
	return ch, true
}

// Channels returns every channel sorted by name.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) ChannelCount() int { return len(r.channels) }

// Join adds u to ch. It reports false if u was already a member.
func (r *Registry) Join(ch *Channel, u *User, operator bool) bool {
	if !ch.AddMember(u.Username, operator) {
		return false
	}
	u.channels[irc.Fold(ch.Name)] = ch.Name
	return true
}

// Part removes u from ch. It reports false if u was not a member.
func (r *Registry) Part(ch *Channel, u *User) bool {
	delete(u.channels, irc.Fold(ch.Name))
	return ch.RemoveMember(u.Username)
}

// Members resolves ch's memberships to users, in membership order.
func (r *Registry) Members(ch *Channel) []*User {
	members := ch.Members()
	out := make([]*User, 0, len(members))
	for _, m := range members {
		if u, ok := r.users[m.Username]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Peers returns every other user sharing at least one channel with u, each
// once.
func (r *Registry) Peers(u *User) []*User {
	seen := map[string]bool{u.Username: true}
	var out []*User
	for _, name := range u.Channels() {
		ch := r.FindChannel(name)
		if ch == nil {
			continue
		}
		for _, peer := range r.Members(ch) {
			if seen[peer.Username] {
				continue
			}
			seen[peer.Username] = true
			out = append(out, peer)
		}
	}
	return out
}
