package commands

import (
	"time"

	"github.com/lrstanley/girc"
	"go.uber.org/zap"

	"pkdindustries/ircd/internal/config"
	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/metrics"
	"pkdindustries/ircd/internal/registry"
	"pkdindustries/ircd/internal/store"
)

// Stats reports connection counts the registry cannot see.
type Stats interface {
	Connections() int
}

// Env is the server state commands act on. It belongs to the event loop;
// handlers run there one at a time.
type Env struct {
	Config   *config.Configuration
	Registry *registry.Registry
	Archive  *store.Archive
	Metrics  *metrics.Metrics
	Stats    Stats
	Started  time.Time
	Version  string
	Log      *zap.SugaredLogger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (e *Env) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Env) ServerName() string { return e.Config.Server.Name }

// RecordChannel copies a channel's persistent fields into the archive.
func (e *Env) RecordChannel(ch *registry.Channel) {
	if e.Archive == nil {
		return
	}
	e.Archive.Put(store.ChannelRecord{
		Name:    ch.Name,
		Created: ch.Created,
		Mode:    int(ch.Mode),
		Topic:   ch.Topic,
	})
}

// RetireChannels archives channels removed from the registry and rewrites
// the channel file.
func (e *Env) RetireChannels(channels ...*registry.Channel) {
	if e.Archive == nil || len(channels) == 0 {
		return
	}
	for _, ch := range channels {
		e.RecordChannel(ch)
	}
	if err := e.Archive.Save(); err != nil {
		e.Log.Errorw("Failed to save channel archive", "error", err)
		e.Metrics.RecordPersistenceError("channels")
	}
	e.Metrics.SetPopulation(e.Registry.UserCount(), e.Registry.ChannelCount())
}

// restoreChannel applies an archived record to a freshly created channel.
func (e *Env) restoreChannel(ch *registry.Channel) {
	if e.Archive == nil {
		return
	}
	rec, ok := e.Archive.Lookup(ch.Name)
	if !ok {
		return
	}
	ch.Created = rec.Created
	ch.Mode = registry.ChannelMode(rec.Mode)
	ch.Topic = irc.Clip(rec.Topic, e.Config.Limits.TopicLength)
}

// Context carries one inbound message through its handler.
type Context struct {
	*Env
	User *registry.User
	Msg  *irc.Message
	Log  *zap.SugaredLogger
}

func NewContext(env *Env, u *registry.User, msg *irc.Message, log *zap.SugaredLogger) *Context {
	if log == nil {
		log = env.Log
	}
	return &Context{Env: env, User: u, Msg: msg, Log: log}
}

// Reply sends a numeric to the requesting user. The last param is sent as
// the trailing body.
func (c *Context) Reply(code string, params ...string) {
	c.User.Send(Numeric(c.ServerName(), c.User.Name(), code, params...))
}

// ReplyParams sends a numeric with no trailing body.
func (c *Context) ReplyParams(code string, params ...string) {
	m := &irc.Message{
		Origin:  c.ServerName(),
		Command: code,
		Params:  append([]string{c.User.Name()}, params...),
	}
	c.User.Send(m.String())
}

func (c *Context) needMoreParams() {
	c.Reply(girc.ERR_NEEDMOREPARAMS, c.Msg.Command, "Not enough parameters")
}

// broadcast sends line to every member of ch except skip.
func (c *Context) broadcast(ch *registry.Channel, line string, skip *registry.User) {
	for _, member := range c.Registry.Members(ch) {
		if member != skip {
			member.Send(line)
		}
	}
}

// dropIfEmpty removes ch once its last member is gone and persists it.
func (c *Context) dropIfEmpty(ch *registry.Channel) {
	if removed, ok := c.Registry.RemoveChannelIfEmpty(ch.Name); ok {
		c.Log.Debugw("Channel removed", "channel", removed.Name)
		c.RetireChannels(removed)
	}
}

// Numeric renders ":server code target params... :last".
func Numeric(server, target, code string, params ...string) string {
	m := &irc.Message{
		Origin:  server,
		Command: code,
		Params:  append([]string{target}, params...),
	}
	if n := len(m.Params); n > 1 {
		m.Trailing = m.Params[n-1]
		m.Params = m.Params[:n-1]
		m.HasTrailing = true
	}
	return m.String()
}

// Relay renders a message originating from u. The text, if given, is sent
// as the trailing body.
func Relay(u *registry.User, command string, params []string, text ...string) string {
	m := &irc.Message{Origin: u.Prefix(), Command: command, Params: params}
	if len(text) > 0 {
		m.Trailing = text[0]
		m.HasTrailing = true
	}
	return m.String()
}

// ClosingLink is the terminal ERROR line sent before a connection closes.
func ClosingLink(host, reason string) string {
	return irc.Format("ERROR :Closing Link: %s (%s)", host, reason)
}
