package commands

import (
	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
)

// PingCommand answers a client PING.
type PingCommand struct{}

func (c *PingCommand) Name() string            { return girc.PING }
func (c *PingCommand) NeedsRegistration() bool { return false }
func (c *PingCommand) Usage() []string {
	return []string{"PING <token>", "Asks the server to answer with PONG."}
}

func (c *PingCommand) Execute(ctx *Context) {
	token, ok := ctx.Msg.Body(0)
	if !ok || token == "" {
		token = ctx.ServerName()
	}
	m := &irc.Message{
		Origin:      ctx.ServerName(),
		Command:     girc.PONG,
		Params:      []string{ctx.ServerName()},
		Trailing:    token,
		HasTrailing: true,
	}
	ctx.User.Send(m.String())
}

// PongCommand accepts keepalive answers. The server already counts every
// inbound line as activity.
type PongCommand struct{}

func (c *PongCommand) Name() string            { return girc.PONG }
func (c *PongCommand) NeedsRegistration() bool { return false }
func (c *PongCommand) Usage() []string {
	return []string{"PONG <token>", "Answers a server PING."}
}

func (c *PongCommand) Execute(ctx *Context) {}

// QuitCommand closes the connection once queued output is sent.
type QuitCommand struct{}

func (c *QuitCommand) Name() string            { return girc.QUIT }
func (c *QuitCommand) NeedsRegistration() bool { return false }
func (c *QuitCommand) Usage() []string {
	return []string{"QUIT [:<reason>]", "Disconnects from the server."}
}

func (c *QuitCommand) Execute(ctx *Context) {
	reason, _ := ctx.Msg.Body(0)
	if reason == "" {
		reason = "Client Quit"
	}
	u := ctx.User
	u.Send(ClosingLink(u.Hostname, reason))
	u.Quit(reason)
	ctx.Log.Debugw("Quit requested", "reason", reason)
}

// AwayCommand sets or clears an away message.
type AwayCommand struct{}

func (c *AwayCommand) Name() string            { return girc.AWAY }
func (c *AwayCommand) NeedsRegistration() bool { return true }
func (c *AwayCommand) Usage() []string {
	return []string{"AWAY [:<message>]", "Marks you as away. Without a message the mark is cleared."}
}

func (c *AwayCommand) Execute(ctx *Context) {
	text, _ := ctx.Msg.Body(0)
	ctx.User.Away = text
	if text == "" {
		ctx.Reply(girc.RPL_UNAWAY, "You are no longer marked as being away")
		return
	}
	ctx.Reply(girc.RPL_NOWAWAY, "You have been marked as being away")
}
