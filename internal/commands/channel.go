package commands

import (
	"fmt"
	"strconv"

	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/registry"
)

// JoinCommand joins one or more channels, creating them as needed.
type JoinCommand struct{}

func (c *JoinCommand) Name() string            { return girc.JOIN }
func (c *JoinCommand) NeedsRegistration() bool { return true }
func (c *JoinCommand) Usage() []string {
	return []string{
		"JOIN <#channel>{,<#channel>} | JOIN 0",
		"Joins channels, creating any that do not exist. JOIN 0 leaves every channel.",
	}
}

func (c *JoinCommand) Execute(ctx *Context) {
	list := ctx.Msg.Param(0)
	if list == "" {
		list, _ = ctx.Msg.Body(0)
	}
	if list == "" {
		ctx.needMoreParams()
		return
	}

	if list == "0" {
		for _, name := range ctx.User.Channels() {
			if ch := ctx.Registry.FindChannel(name); ch != nil {
				part(ctx, ch, ctx.User.Nick)
			}
		}
		return
	}

	for _, name := range irc.SplitList(list) {
		join(ctx, name)
	}
}

// join adds the user to one channel. The reply order is JOIN to every
// member including the joiner, then RPL_TOPIC if a topic is set, then the
// NAMES list.
func join(ctx *Context, name string) {
	u := ctx.User
	if !irc.ValidChannel(name) {
		ctx.Reply(girc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}

	existing := ctx.Registry.FindChannel(name)
	if existing != nil && existing.HasMember(u.Username) {
		return
	}
	if u.ChannelCount() >= ctx.Config.Limits.MaxChannels {
		ctx.Reply(girc.ERR_TOOMANYCHANNELS, name, "You have joined too many channels")
		return
	}
	if limit := ctx.Config.Limits.MaxChannelUsers; existing != nil && limit > 0 && existing.Len() >= limit {
		ctx.Reply(girc.ERR_CHANNELISFULL, existing.Name, "Cannot join channel (+l)")
		return
	}

	ch, created := ctx.Registry.CreateChannelIfAbsent(name, ctx.Now())
	if created {
		ctx.restoreChannel(ch)
		ctx.Log.Debugw("Channel created", "channel", ch.Name)
	}
	ctx.Registry.Join(ch, u, created)
	ctx.Metrics.SetPopulation(ctx.Registry.UserCount(), ctx.Registry.ChannelCount())

	ctx.broadcast(ch, Relay(u, girc.JOIN, []string{ch.Name}), nil)
	if ch.Topic != "" {
		ctx.Reply(girc.RPL_TOPIC, ch.Name, ch.Topic)
	}
	sendNames(ctx, ch)
	ctx.Reply(girc.RPL_ENDOFNAMES, ch.Name, "End of NAMES list")
}

// PartCommand leaves channels.
type PartCommand struct{}

func (c *PartCommand) Name() string            { return girc.PART }
func (c *PartCommand) NeedsRegistration() bool { return true }
func (c *PartCommand) Usage() []string {
	return []string{"PART <#channel>{,<#channel>} [:<reason>]", "Leaves channels. Empty channels are closed."}
}

func (c *PartCommand) Execute(ctx *Context) {
	if len(ctx.Msg.Params) == 0 {
		ctx.needMoreParams()
		return
	}
	reason, _ := ctx.Msg.Body(1)

	for _, name := range irc.SplitList(ctx.Msg.Params[0]) {
		ch := ctx.Registry.FindChannel(name)
		if ch == nil {
			ctx.Reply(girc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		if !ch.HasMember(ctx.User.Username) {
			ctx.Reply(girc.ERR_NOTONCHANNEL, ch.Name, "You're not on that channel")
			continue
		}
		text := reason
		if text == "" {
			text = fmt.Sprintf("%s is leaving channel %s", ctx.User.Nick, ch.Name)
		}
		part(ctx, ch, text)
	}
}

func part(ctx *Context, ch *registry.Channel, reason string) {
	ctx.broadcast(ch, Relay(ctx.User, girc.PART, []string{ch.Name}, reason), nil)
	ctx.Registry.Part(ch, ctx.User)
	ctx.dropIfEmpty(ch)
}

// TopicCommand queries or sets a channel topic.
type TopicCommand struct{}

func (c *TopicCommand) Name() string            { return girc.TOPIC }
func (c *TopicCommand) NeedsRegistration() bool { return true }
func (c *TopicCommand) Usage() []string {
	return []string{"TOPIC <#channel> [:<topic>]", "Shows the channel topic, or sets it when a topic is given. An empty topic clears it."}
}

func (c *TopicCommand) Execute(ctx *Context) {
	if len(ctx.Msg.Params) == 0 {
		ctx.needMoreParams()
		return
	}
	ch := ctx.Registry.FindChannel(ctx.Msg.Params[0])
	if ch == nil {
		ctx.Reply(girc.ERR_NOSUCHCHANNEL, ctx.Msg.Params[0], "No such channel")
		return
	}

	topic, set := ctx.Msg.Body(1)
	if !set {
		if ch.Topic == "" {
			ctx.Reply(girc.RPL_NOTOPIC, ch.Name, "No topic is set")
			return
		}
		ctx.Reply(girc.RPL_TOPIC, ch.Name, ch.Topic)
		if ch.TopicSetBy != "" {
			ctx.ReplyParams(rplTopicWhoTime, ch.Name, ch.TopicSetBy, strconv.FormatInt(ch.TopicSetAt.Unix(), 10))
		}
		return
	}

	u := ctx.User
	topic = irc.Clip(topic, ctx.Config.Limits.TopicLength)
	ch.SetTopic(topic, u.Nick, ctx.Now())
	line := Relay(u, girc.TOPIC, []string{ch.Name}, topic)
	ctx.broadcast(ch, line, nil)
	if !ch.HasMember(u.Username) {
		u.Send(line)
	}
}

// ModeCommand reports modes and lets channel operators toggle +p.
type ModeCommand struct{}

func (c *ModeCommand) Name() string            { return girc.MODE }
func (c *ModeCommand) NeedsRegistration() bool { return true }
func (c *ModeCommand) Usage() []string {
	return []string{
		"MODE <#channel> [{+|-}<modes>] | MODE <nick>",
		"Shows channel modes. Channel operators may set p (private).",
	}
}

func (c *ModeCommand) Execute(ctx *Context) {
	target := ctx.Msg.Param(0)
	if target == "" {
		ctx.needMoreParams()
		return
	}

	if !irc.IsChannel(target) {
		u := ctx.User
		if irc.Fold(target) != irc.Fold(u.Nick) {
			ctx.Reply(girc.ERR_USERSDONTMATCH, "Cannot change mode for other users")
			return
		}
		ctx.ReplyParams(girc.RPL_UMODEIS, userModeString(u))
		return
	}

	ch := ctx.Registry.FindChannel(target)
	if ch == nil {
		ctx.Reply(girc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return
	}

	change := ctx.Msg.Param(1)
	if change == "" {
		ctx.ReplyParams(girc.RPL_CHANNELMODEIS, ch.Name, ch.Mode.String())
		ctx.ReplyParams(rplCreationTime, ch.Name, strconv.FormatInt(ch.Created.Unix(), 10))
		return
	}

	if m, ok := ch.Member(ctx.User.Username); !ok || !m.Operator {
		ctx.Reply(girc.ERR_CHANOPRIVSNEEDED, ch.Name, "You're not channel operator")
		return
	}

	mode, applied, ok := applyModes(ch.Mode, change)
	if !ok {
		ctx.Reply(girc.ERR_UNKNOWNMODE, applied, "is unknown mode char to me for "+ch.Name)
		return
	}
	if mode == ch.Mode {
		return
	}
	ch.Mode = mode
	ctx.broadcast(ch, Relay(ctx.User, girc.MODE, []string{ch.Name, applied}), nil)
}

// applyModes applies a "+p-p" style change. On an unknown letter it
// returns that letter and false.
func applyModes(mode registry.ChannelMode, change string) (registry.ChannelMode, string, bool) {
	adding := true
	var applied []byte
	var sign byte
	for i := 0; i < len(change); i++ {
		switch ch := change[i]; ch {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			flag, ok := registry.ModeForLetter(ch)
			if !ok {
				return mode, string(ch), false
			}
			before := mode
			if adding {
				mode |= flag
			} else {
				mode &^= flag
			}
			if mode == before {
				continue
			}
			want := byte('-')
			if adding {
				want = '+'
			}
			if sign != want {
				applied = append(applied, want)
				sign = want
			}
			applied = append(applied, ch)
		}
	}
	return mode, string(applied), true
}

func userModeString(u *registry.User) string {
	s := "+"
	if u.Away != "" {
		s += "a"
	}
	if u.Operator {
		s += "o"
	}
	return s
}
