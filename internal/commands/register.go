package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/registry"
)

// NickCommand sets or changes the nick.
type NickCommand struct{}

func (c *NickCommand) Name() string            { return girc.NICK }
func (c *NickCommand) NeedsRegistration() bool { return false }
func (c *NickCommand) Usage() []string {
	return []string{"NICK <nickname>", "Sets your nickname, or changes it once registered."}
}

func (c *NickCommand) Execute(ctx *Context) {
	nick := ctx.Msg.Param(0)
	if nick == "" && ctx.Msg.HasTrailing {
		nick = ctx.Msg.Trailing
	}
	if nick == "" {
		ctx.Reply(girc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}
	if !irc.ValidNick(nick, ctx.Config.Limits.NickLength) {
		ctx.Reply(girc.ERR_ERRONEUSNICKNAME, nick, "Erroneous nickname")
		return
	}

	u := ctx.User
	if u.Registered() && nick == u.Nick {
		return
	}
	if !ctx.Registry.NickIsAvailable(nick, u) {
		ctx.Reply(girc.ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return
	}

	if !u.Registered() {
		ctx.Registry.BindNick(u, nick)
		completeRegistration(ctx)
		return
	}

	line := Relay(u, girc.NICK, []string{nick})
	peers := ctx.Registry.Peers(u)
	old := u.Nick
	ctx.Registry.BindNick(u, nick)
	ctx.Registry.RecordHistoricalNick(u.Username, nick)

	u.Send(line)
	for _, peer := range peers {
		peer.Send(line)
	}
	ctx.Log.Infow("Nick changed", "old", old, "new", nick)
}

// userLength bounds usernames so that a nick!user@host prefix fits in
// relayed lines alongside a full-length topic or message target.
const userLength = 16

// UserCommand supplies the username and realname during registration.
type UserCommand struct{}

func (c *UserCommand) Name() string            { return girc.USER }
func (c *UserCommand) NeedsRegistration() bool { return false }
func (c *UserCommand) Usage() []string {
	return []string{"USER <username> <mode> <unused> :<realname>", "Sets your username and realname during registration."}
}

func (c *UserCommand) Execute(ctx *Context) {
	u := ctx.User
	if u.Registered() {
		ctx.Reply(girc.ERR_ALREADYREGISTRED, "Unauthorized command (already registered)")
		return
	}

	msg := ctx.Msg
	var realname string
	switch {
	case len(msg.Params) >= 3 && msg.HasTrailing:
		realname = msg.Trailing
	case len(msg.Params) >= 4:
		realname = msg.Params[3]
	default:
		ctx.needMoreParams()
		return
	}
	if realname == "" {
		ctx.needMoreParams()
		return
	}

	username := irc.Clip(irc.SanitizeUser(msg.Params[0]), userLength)
	if username == "" {
		ctx.needMoreParams()
		return
	}
	if other := ctx.Registry.FindUserByUsername(username); other != nil && other != u {
		ctx.Reply(girc.ERR_ALREADYREGISTRED, "Username is already in use")
		return
	}

	u.Username = username
	u.Realname = realname
	completeRegistration(ctx)
}

// completeRegistration registers the user once nick, username and realname
// are all known, then sends the welcome burst. A user who never sent NICK
// gets back the first free nick from their history.
func completeRegistration(ctx *Context) {
	u := ctx.User
	if u.Registered() || u.Username == "" || u.Realname == "" {
		return
	}
	if u.Nick == "" {
		for _, nick := range ctx.Registry.NickHistory(u.Username) {
			if ctx.Registry.NickIsAvailable(nick, u) {
				ctx.Registry.BindNick(u, nick)
				break
			}
		}
		if u.Nick == "" {
			return
		}
	}

	err := ctx.Registry.AddUser(u)
	switch {
	case errors.Is(err, registry.ErrNickInUse):
		nick := u.Nick
		u.Nick = ""
		ctx.Reply(girc.ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return
	case errors.Is(err, registry.ErrUsernameInUse):
		u.Username, u.Realname = "", ""
		ctx.Reply(girc.ERR_ALREADYREGISTRED, "Username is already in use")
		return
	case err != nil:
		ctx.Log.Warnw("Registration failed", "error", err)
		return
	}

	ctx.Log.Infow("Registration completed", "nick", u.Nick, "user", u.Username)
	ctx.Metrics.RecordRegistration()
	ctx.Metrics.SetPopulation(ctx.Registry.UserCount(), ctx.Registry.ChannelCount())
	welcome(ctx)
}

func welcome(ctx *Context) {
	server := ctx.ServerName()
	ctx.Reply(girc.RPL_WELCOME, "Welcome to the Internet Relay Network "+ctx.User.Prefix())
	ctx.Reply(girc.RPL_YOURHOST, fmt.Sprintf("Your host is %s, running version %s", server, ctx.Version))
	ctx.Reply(girc.RPL_CREATED, "This server was created "+ctx.Started.Format(time.RFC1123))
	ctx.ReplyParams(girc.RPL_MYINFO, server, ctx.Version, userModes, channelModes)
	sendMOTD(ctx, false)
}
