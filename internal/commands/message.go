package commands

import (
	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
)

// PrivmsgCommand delivers PRIVMSG, or NOTICE when Notice is set. NOTICE
// never produces error replies.
type PrivmsgCommand struct {
	Notice bool
}

func (c *PrivmsgCommand) Name() string {
	if c.Notice {
		return girc.NOTICE
	}
	return girc.PRIVMSG
}

func (c *PrivmsgCommand) NeedsRegistration() bool { return true }

func (c *PrivmsgCommand) Usage() []string {
	return []string{
		c.Name() + " <target> :<text>",
		"Sends text to a nick or to a channel you are in. The sender does not get a copy.",
	}
}

func (c *PrivmsgCommand) Execute(ctx *Context) {
	msg := ctx.Msg
	if len(msg.Params) == 0 {
		c.fail(ctx, girc.ERR_NORECIPIENT, "No recipient given ("+c.Name()+")")
		return
	}
	text, ok := msg.Body(1)
	if !ok || text == "" {
		c.fail(ctx, girc.ERR_NOTEXTTOSEND, "No text to send")
		return
	}

	target := msg.Params[0]
	u := ctx.User

	if irc.IsChannel(target) {
		ch := ctx.Registry.FindChannel(target)
		if ch == nil {
			c.fail(ctx, girc.ERR_NOSUCHCHANNEL, target, "No such channel")
			return
		}
		if !ch.HasMember(u.Username) {
			c.fail(ctx, girc.ERR_CANNOTSENDTOCHAN, ch.Name, "Cannot send to channel")
			return
		}
		ctx.broadcast(ch, Relay(u, c.Name(), []string{ch.Name}, text), u)
		return
	}

	to := ctx.Registry.FindUserByNick(target)
	if to == nil {
		c.fail(ctx, girc.ERR_NOSUCHNICK, target, "No such nick/channel")
		return
	}
	to.Send(Relay(u, c.Name(), []string{to.Nick}, text))
	if to.Away != "" && !c.Notice {
		ctx.Reply(girc.RPL_AWAY, to.Nick, to.Away)
	}
}

func (c *PrivmsgCommand) fail(ctx *Context, code string, params ...string) {
	if c.Notice {
		return
	}
	ctx.Reply(code, params...)
}
