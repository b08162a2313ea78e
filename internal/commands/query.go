package commands

import (
	"strconv"

	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/registry"
)

// ListCommand lists channels with their member counts and topics.
type ListCommand struct{}

func (c *ListCommand) Name() string            { return girc.LIST }
func (c *ListCommand) NeedsRegistration() bool { return true }
func (c *ListCommand) Usage() []string {
	return []string{"LIST [<#channel>{,<#channel>}]", "Lists channels. Private channels are shown to their members only."}
}

func (c *ListCommand) Execute(ctx *Context) {
	var channels []*registry.Channel
	if filter := ctx.Msg.Param(0); filter != "" {
		for _, name := range irc.SplitList(filter) {
			if ch := ctx.Registry.FindChannel(name); ch != nil {
				channels = append(channels, ch)
			}
		}
	} else {
		channels = ctx.Registry.Channels()
	}

	ctx.Reply(girc.RPL_LISTSTART, "Channel", "Users  Name")
	for _, ch := range channels {
		if !visible(ctx, ch) {
			continue
		}
		ctx.Reply(girc.RPL_LIST, ch.Name, strconv.Itoa(ch.Len()), ch.Topic)
	}
	ctx.Reply(girc.RPL_LISTEND, "End of LIST")
}

// NamesCommand lists channel members.
type NamesCommand struct{}

func (c *NamesCommand) Name() string            { return girc.NAMES }
func (c *NamesCommand) NeedsRegistration() bool { return true }
func (c *NamesCommand) Usage() []string {
	return []string{"NAMES [<#channel>{,<#channel>}]", "Lists the members of channels. Operators are marked with @."}
}

func (c *NamesCommand) Execute(ctx *Context) {
	filter := ctx.Msg.Param(0)
	if filter == "" {
		for _, ch := range ctx.Registry.Channels() {
			if visible(ctx, ch) {
				sendNames(ctx, ch)
			}
		}
		ctx.Reply(girc.RPL_ENDOFNAMES, "*", "End of NAMES list")
		return
	}

	for _, name := range irc.SplitList(filter) {
		if ch := ctx.Registry.FindChannel(name); ch != nil && visible(ctx, ch) {
			sendNames(ctx, ch)
			name = ch.Name
		}
		ctx.Reply(girc.RPL_ENDOFNAMES, name, "End of NAMES list")
	}
}

// sendNames emits RPL_NAMREPLY lines for ch, split so that none passes
// the line limit. The caller sends RPL_ENDOFNAMES.
func sendNames(ctx *Context, ch *registry.Channel) {
	kind := "="
	if ch.Mode.Has(registry.ModePrivate) {
		kind = "*"
	}
	prefix := ":" + ctx.ServerName() + " " + girc.RPL_NAMREPLY + " " + ctx.User.Name() + " " + kind + " " + ch.Name + " :"

	split := irc.NewSplitter(prefix)
	for _, m := range ch.Members() {
		u := ctx.Registry.FindUserByUsername(m.Username)
		if u == nil {
			continue
		}
		if m.Operator {
			split.Add("@" + u.Nick)
		} else {
			split.Add(u.Nick)
		}
	}
	for _, line := range split.Lines() {
		ctx.User.Send(line)
	}
}

func visible(ctx *Context, ch *registry.Channel) bool {
	return !ch.Mode.Has(registry.ModePrivate) || ch.HasMember(ctx.User.Username)
}

// WhoCommand describes users in a channel, or users matching a nick.
type WhoCommand struct{}

func (c *WhoCommand) Name() string            { return girc.WHO }
func (c *WhoCommand) NeedsRegistration() bool { return true }
func (c *WhoCommand) Usage() []string {
	return []string{"WHO [<#channel>|<nick>]", "Describes the members of a channel, a single user, or everyone visible."}
}

func (c *WhoCommand) Execute(ctx *Context) {
	mask := ctx.Msg.Param(0)
	switch {
	case mask == "" || mask == "*" || mask == "0":
		for _, u := range ctx.Registry.Users() {
			whoReply(ctx, nil, u)
		}
		mask = "*"
	case irc.IsChannel(mask):
		if ch := ctx.Registry.FindChannel(mask); ch != nil && visible(ctx, ch) {
			for _, u := range ctx.Registry.Members(ch) {
				whoReply(ctx, ch, u)
			}
			mask = ch.Name
		}
	default:
		if u := ctx.Registry.FindUserByNick(mask); u != nil {
			whoReply(ctx, nil, u)
		}
	}
	ctx.Reply(girc.RPL_ENDOFWHO, mask, "End of WHO list")
}

func whoReply(ctx *Context, ch *registry.Channel, u *registry.User) {
	channel := "*"
	flags := "H"
	if u.Away != "" {
		flags = "G"
	}
	if u.Operator {
		flags += "*"
	}
	if ch != nil {
		channel = ch.Name
		if m, ok := ch.Member(u.Username); ok && m.Operator {
			flags += "@"
		}
	}
	ctx.Reply(girc.RPL_WHOREPLY, channel, u.Username, u.Hostname, ctx.ServerName(), u.Nick, flags, "0 "+u.Realname)
}

// WhowasCommand answers from the nick history.
type WhowasCommand struct{}

func (c *WhowasCommand) Name() string            { return girc.WHOWAS }
func (c *WhowasCommand) NeedsRegistration() bool { return true }
func (c *WhowasCommand) Usage() []string {
	return []string{"WHOWAS <nick>", "Shows who has used a nick before."}
}

func (c *WhowasCommand) Execute(ctx *Context) {
	nick := ctx.Msg.Param(0)
	if nick == "" {
		ctx.Reply(girc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}

	username, ok := ctx.Registry.HistoricalOwner(nick)
	if !ok {
		ctx.Reply(girc.ERR_WASNOSUCHNICK, nick, "There was no such nickname")
		ctx.Reply(girc.RPL_ENDOFWHOWAS, nick, "End of WHOWAS")
		return
	}

	host, realname := "*", username
	if u := ctx.Registry.FindUserByUsername(username); u != nil {
		host, realname = u.Hostname, u.Realname
		if irc.Fold(u.Nick) != irc.Fold(nick) {
			realname += " (now " + u.Nick + ")"
		}
	}
	ctx.Reply(girc.RPL_WHOWASUSER, nick, username, host, "*", realname)
	ctx.Reply(girc.RPL_ENDOFWHOWAS, nick, "End of WHOWAS")
}
